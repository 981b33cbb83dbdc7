package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/zlnvch/easel/models"
	"github.com/zlnvch/easel/service"
	"github.com/zlnvch/easel/store"
)

var allLevels = []models.PermissionLevel{models.PermissionView, models.PermissionEdit, models.PermissionAdmin}

func TestEvaluatePermission_OwnerPassesEveryLevel(t *testing.T) {
	for _, public := range []bool{false, true} {
		svc, mockStore, _, _, _ := setupService(t)
		canvas := testCanvas()
		canvas.IsPublic = public
		expectAccess(mockStore, canvas, ownerId, models.PermissionNone)

		for _, level := range allLevels {
			result := svc.EvaluatePermission(context.Background(), ownerId, canvasId, level)
			assert.True(t, result.Allowed, "owner should hold %s", level)
			assert.Equal(t, models.PermissionAdmin, result.Effective)
			assert.Equal(t, service.ReasonOwner, result.Reason)
		}
	}
}

func TestEvaluatePermission_PublicCanvasGrantsViewOnly(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	canvas := testCanvas()
	canvas.IsPublic = true
	expectAccess(mockStore, canvas, otherId, models.PermissionNone)
	ctx := context.Background()

	result := svc.EvaluatePermission(ctx, otherId, canvasId, models.PermissionView)
	assert.True(t, result.Allowed)
	assert.Equal(t, service.ReasonPublic, result.Reason)
	assert.Equal(t, models.PermissionView, result.Effective)

	assert.False(t, svc.CheckPermission(ctx, otherId, canvasId, models.PermissionEdit))
	assert.False(t, svc.CheckPermission(ctx, otherId, canvasId, models.PermissionAdmin))
}

func TestEvaluatePermission_ShareRanks(t *testing.T) {
	tests := []struct {
		name     string
		share    models.PermissionLevel
		required models.PermissionLevel
		allowed  bool
	}{
		{"View satisfies view", models.PermissionView, models.PermissionView, true},
		{"View fails edit", models.PermissionView, models.PermissionEdit, false},
		{"Edit satisfies view", models.PermissionEdit, models.PermissionView, true},
		{"Edit satisfies edit", models.PermissionEdit, models.PermissionEdit, true},
		{"Edit fails admin", models.PermissionEdit, models.PermissionAdmin, false},
		{"Admin satisfies admin", models.PermissionAdmin, models.PermissionAdmin, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, mockStore, _, _, _ := setupService(t)
			expectAccess(mockStore, testCanvas(), editorId, tc.share)

			result := svc.EvaluatePermission(context.Background(), editorId, canvasId, tc.required)
			assert.Equal(t, tc.allowed, result.Allowed)
			assert.Equal(t, tc.share, result.Effective)
			if tc.allowed {
				assert.Equal(t, service.ReasonShare, result.Reason)
			} else {
				assert.Equal(t, service.ReasonInsufficientLevel, result.Reason)
			}
		})
	}
}

func TestEvaluatePermission_NoShareOnPrivateCanvas(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	expectAccess(mockStore, testCanvas(), otherId, models.PermissionNone)

	result := svc.EvaluatePermission(context.Background(), otherId, canvasId, models.PermissionView)
	assert.False(t, result.Allowed)
	assert.Equal(t, models.PermissionNone, result.Effective)
	assert.Equal(t, service.ReasonNoShare, result.Reason)
}

func TestEvaluatePermission_CanvasNotFound(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	mockStore.On("GetCanvasAccess", mock.Anything, canvasId, ownerId).Return(models.Canvas{}, nil, store.ErrItemNotFound)

	result := svc.EvaluatePermission(context.Background(), ownerId, canvasId, models.PermissionView)
	assert.False(t, result.Allowed)
	assert.Equal(t, service.ReasonCanvasNotFound, result.Reason)
	assert.NoError(t, result.Err)
}

func TestCheckPermission_LookupFailureDenies(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	mockStore.On("GetCanvasAccess", mock.Anything, canvasId, ownerId).Return(models.Canvas{}, nil, errors.New("connection reset"))
	ctx := context.Background()

	assert.False(t, svc.CheckPermission(ctx, ownerId, canvasId, models.PermissionView))

	result := svc.EvaluatePermission(ctx, ownerId, canvasId, models.PermissionView)
	assert.Equal(t, service.ReasonLookupFailed, result.Reason)
	assert.ErrorContains(t, result.Err, "connection reset")

	_, err := svc.EffectiveLevel(ctx, ownerId, canvasId)
	assert.Error(t, err)
}

func TestEvaluatePermission_InvalidRequirement(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	expectAccess(mockStore, testCanvas(), ownerId, models.PermissionNone)

	result := svc.EvaluatePermission(context.Background(), ownerId, canvasId, models.PermissionNone)
	assert.False(t, result.Allowed)
	assert.Equal(t, service.ReasonInvalidRequirement, result.Reason)
}

func TestEffectiveLevel(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	canvas := testCanvas()
	canvas.IsPublic = true
	expectAccess(mockStore, canvas, editorId, models.PermissionEdit)
	expectAccess(mockStore, canvas, otherId, models.PermissionNone)
	expectAccess(mockStore, canvas, ownerId, models.PermissionNone)
	ctx := context.Background()

	level, err := svc.EffectiveLevel(ctx, editorId, canvasId)
	assert.NoError(t, err)
	assert.Equal(t, models.PermissionEdit, level)

	level, err = svc.EffectiveLevel(ctx, otherId, canvasId)
	assert.NoError(t, err)
	assert.Equal(t, models.PermissionView, level)

	level, err = svc.EffectiveLevel(ctx, ownerId, canvasId)
	assert.NoError(t, err)
	assert.Equal(t, models.PermissionAdmin, level)
}

func TestLoadCanvas_InformationHiding(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	expectAccess(mockStore, testCanvas(), otherId, models.PermissionNone)

	_, err := svc.LoadCanvas(context.Background(), other, canvasId)
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.NotErrorIs(t, err, service.ErrPermissionDenied)
}

func TestDeleteCanvas_VisibleButInsufficientIsDenied(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	expectAccess(mockStore, testCanvas(), editorId, models.PermissionEdit)

	err := svc.DeleteCanvas(context.Background(), editor, canvasId)
	assert.ErrorIs(t, err, service.ErrPermissionDenied)
	mockStore.AssertNotCalled(t, "DeleteCanvas", mock.Anything, mock.Anything)
}

func TestLoadCanvas_MalformedIdIsNotFound(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)

	_, err := svc.LoadCanvas(context.Background(), owner, "not-a-uuid")
	assert.ErrorIs(t, err, service.ErrNotFound)
	mockStore.AssertNotCalled(t, "GetCanvasAccess", mock.Anything, mock.Anything, mock.Anything)
}
