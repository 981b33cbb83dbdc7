package service_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zlnvch/easel/models"
	"github.com/zlnvch/easel/service"
	"github.com/zlnvch/easel/store"
	"github.com/zlnvch/easel/worker"
)

func TestCreateCanvas_Success(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("CreateCanvas", ctx, mock.MatchedBy(func(c models.Canvas) bool {
		return c.OwnerId == ownerId &&
			c.Version == 1 &&
			c.Name == "A" &&
			string(c.DocumentData) == `{"elements":[]}` &&
			string(c.SessionData) == "{}" &&
			c.Id != ""
	})).Return(testCanvas(), nil)

	canvas, err := svc.CreateCanvas(ctx, owner, service.CreateCanvasParams{
		Name:         "  <b>A</b> ",
		DocumentData: json.RawMessage(`{"elements":[]}`),
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, canvas.Version)
	mockStore.AssertExpectations(t)
}

func TestCreateCanvas_Validation(t *testing.T) {
	tests := []struct {
		name   string
		params service.CreateCanvasParams
		field  string
	}{
		{"Empty name", service.CreateCanvasParams{Name: "   "}, "name"},
		{"Markup only name", service.CreateCanvasParams{Name: "<b></b>"}, "name"},
		{"Name too long", service.CreateCanvasParams{Name: strings.Repeat("a", 121)}, "name"},
		{"Description too long", service.CreateCanvasParams{Name: "A", Description: strings.Repeat("d", 2001)}, "description"},
		{"Document is an array", service.CreateCanvasParams{Name: "A", DocumentData: json.RawMessage(`[1,2]`)}, "documentData"},
		{"Document is invalid", service.CreateCanvasParams{Name: "A", DocumentData: json.RawMessage(`{"a":`)}, "documentData"},
		{"Session is a string", service.CreateCanvasParams{Name: "A", SessionData: json.RawMessage(`"x"`)}, "sessionData"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, mockStore, _, _, _ := setupService(t)

			_, err := svc.CreateCanvas(context.Background(), owner, tc.params)
			var validationErr *service.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tc.field, validationErr.Field)
			mockStore.AssertNotCalled(t, "CreateCanvas", mock.Anything, mock.Anything)
		})
	}
}

func TestSaveCanvas_VersionIncrementsOncePerSave(t *testing.T) {
	svc, mockStore, _, _, events := setupService(t)
	ctx := context.Background()
	expectAccess(mockStore, testCanvas(), ownerId, models.PermissionNone)

	const saves = 5
	for i := 1; i <= saves; i++ {
		saved := testCanvas()
		saved.Version = 1 + i
		mockStore.On("SaveCanvas", ctx, mock.MatchedBy(func(u models.CanvasUpdate) bool {
			return u.CanvasId == canvasId
		})).Return(saved, nil).Once()
	}

	version := 1
	for i := 0; i < saves; i++ {
		canvas, err := svc.SaveCanvas(ctx, owner, canvasId, service.SaveCanvasParams{
			DocumentData: json.RawMessage(`{"n":1}`),
		})
		require.NoError(t, err)
		assert.Equal(t, version+1, canvas.Version)
		version = canvas.Version

		event := waitForEvent(t, events)
		assert.Equal(t, service.EventCanvasSaved, event.Type)
		assert.Equal(t, version, event.Data.Version)
	}
	assert.Equal(t, 1+saves, version)
	mockStore.AssertExpectations(t)
}

func TestSaveCanvas_SharedEditorScenario(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	canvas := testCanvas()

	// U1 shares with U2 at EDIT.
	expectAccess(mockStore, canvas, ownerId, models.PermissionNone)
	mockStore.On("GetUserByEmail", ctx, editor.Email).Return(editor, nil)
	mockStore.On("UpsertShare", ctx, mock.MatchedBy(func(s models.CanvasShare) bool {
		return s.GranteeUserId == editorId && s.Level == models.PermissionEdit && s.GrantedByUserId == ownerId
	})).Return(models.CanvasShare{CanvasId: canvasId, GranteeUserId: editorId, Level: models.PermissionEdit}, nil)

	share, err := svc.ShareCanvas(ctx, owner, canvasId, service.ShareParams{GranteeEmail: editor.Email, Level: "edit"})
	require.NoError(t, err)
	assert.Equal(t, models.PermissionEdit, share.Level)
	assert.Equal(t, editor.Email, share.GranteeEmail)

	// U2 saves a new document.
	newDocument := json.RawMessage(`{"elements":[{"id":"e1"}]}`)
	saved := canvas
	saved.Version = 2
	saved.DocumentData = newDocument
	expectAccess(mockStore, canvas, editorId, models.PermissionEdit)
	mockStore.On("SaveCanvas", ctx, mock.MatchedBy(func(u models.CanvasUpdate) bool {
		return string(u.DocumentData) == string(newDocument) && u.Name == nil && u.IsPublic == nil
	})).Return(saved, nil)

	result, err := svc.SaveCanvas(ctx, editor, canvasId, service.SaveCanvasParams{DocumentData: newDocument})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Version)

	// U1 loads and sees U2's document.
	mockStore.On("GetCanvas", ctx, canvasId).Return(saved, nil)
	mockStore.On("ListAssets", ctx, canvasId).Return([]models.CanvasAsset{}, nil)

	details, err := svc.LoadCanvas(ctx, owner, canvasId)
	require.NoError(t, err)
	assert.Equal(t, 2, details.Version)
	assert.JSONEq(t, string(newDocument), string(details.DocumentData))
	assert.Equal(t, models.PermissionAdmin, details.Permission)
}

func TestSaveCanvas_CreatesAbsentCanvas(t *testing.T) {
	svc, mockStore, _, _, events := setupService(t)
	ctx := context.Background()

	mockStore.On("GetCanvasAccess", ctx, canvasId, editorId).Return(models.Canvas{}, nil, store.ErrItemNotFound)
	mockStore.On("CreateCanvas", ctx, mock.MatchedBy(func(c models.Canvas) bool {
		return c.Id == canvasId && c.OwnerId == editorId && c.Version == 1 && c.Name == "Untitled canvas"
	})).Return(models.Canvas{Id: canvasId, OwnerId: editorId, Version: 1, Name: "Untitled canvas"}, nil)

	canvas, err := svc.SaveCanvas(ctx, editor, canvasId, service.SaveCanvasParams{DocumentData: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, 1, canvas.Version)
	assert.Equal(t, editorId, canvas.OwnerId)
	mockStore.AssertNotCalled(t, "SaveCanvas", mock.Anything, mock.Anything)
	assertNoEvent(t, events)
}

func TestSaveCanvas_CreateRaceFallsBackToSave(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetCanvasAccess", ctx, canvasId, ownerId).Return(models.Canvas{}, nil, store.ErrItemNotFound).Once()
	mockStore.On("CreateCanvas", ctx, mock.Anything).Return(models.Canvas{}, store.ErrDuplicate)
	mockStore.On("GetCanvasAccess", ctx, canvasId, ownerId).Return(testCanvas(), nil, nil).Once()
	saved := testCanvas()
	saved.Version = 2
	mockStore.On("SaveCanvas", ctx, mock.Anything).Return(saved, nil)

	canvas, err := svc.SaveCanvas(ctx, owner, canvasId, service.SaveCanvasParams{DocumentData: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, 2, canvas.Version)
	mockStore.AssertExpectations(t)
}

func TestSaveCanvas_MetadataIsOwnerOnly(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	expectAccess(mockStore, testCanvas(), editorId, models.PermissionEdit)

	renamed := "B"
	_, err := svc.SaveCanvas(ctx, editor, canvasId, service.SaveCanvasParams{Name: &renamed})
	assert.ErrorIs(t, err, service.ErrPermissionDenied)

	public := true
	_, err = svc.SaveCanvas(ctx, editor, canvasId, service.SaveCanvasParams{IsPublic: &public})
	assert.ErrorIs(t, err, service.ErrPermissionDenied)

	mockStore.AssertNotCalled(t, "SaveCanvas", mock.Anything, mock.Anything)
}

func TestSaveCanvas_UnchangedMetadataFromEditorIsDropped(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	expectAccess(mockStore, testCanvas(), editorId, models.PermissionEdit)

	mockStore.On("SaveCanvas", ctx, mock.MatchedBy(func(u models.CanvasUpdate) bool {
		return u.Name == nil && u.IsPublic == nil && u.Description == nil
	})).Return(testCanvas(), nil)

	sameName := "A"
	notPublic := false
	_, err := svc.SaveCanvas(ctx, editor, canvasId, service.SaveCanvasParams{Name: &sameName, IsPublic: &notPublic})
	assert.NoError(t, err)
	mockStore.AssertExpectations(t)
}

func TestSaveCanvas_OwnerUpdatesMetadata(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	expectAccess(mockStore, testCanvas(), ownerId, models.PermissionNone)

	mockStore.On("SaveCanvas", ctx, mock.MatchedBy(func(u models.CanvasUpdate) bool {
		return u.Name != nil && *u.Name == "Renamed" && u.IsPublic != nil && *u.IsPublic
	})).Return(testCanvas(), nil)

	name := "Renamed"
	public := true
	_, err := svc.SaveCanvas(ctx, owner, canvasId, service.SaveCanvasParams{Name: &name, IsPublic: &public})
	assert.NoError(t, err)
	mockStore.AssertExpectations(t)
}

func TestSaveCanvas_ViewerIsDenied(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	expectAccess(mockStore, testCanvas(), viewerId, models.PermissionView)

	_, err := svc.SaveCanvas(context.Background(), viewer, canvasId, service.SaveCanvasParams{})
	assert.ErrorIs(t, err, service.ErrPermissionDenied)
}

func TestSaveCanvas_StrangerGetsNotFound(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	expectAccess(mockStore, testCanvas(), otherId, models.PermissionNone)

	_, err := svc.SaveCanvas(context.Background(), other, canvasId, service.SaveCanvasParams{})
	assert.ErrorIs(t, err, service.ErrNotFound)
	mockStore.AssertNotCalled(t, "CreateCanvas", mock.Anything, mock.Anything)
}

func TestSaveCanvas_InvalidId(t *testing.T) {
	svc, _, _, _, _ := setupService(t)

	_, err := svc.SaveCanvas(context.Background(), owner, "../etc", service.SaveCanvasParams{})
	assert.True(t, service.IsValidationError(err))
}

func TestListCanvases_NormalizesPagination(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("ListCanvases", ctx, ownerId, 0, service.MaxPerPage).Return([]models.Canvas{testCanvas()}, int64(1), nil)
	mockStore.On("ListCanvases", ctx, ownerId, 40, 20).Return([]models.Canvas{}, int64(41), nil)

	page, err := svc.ListCanvases(ctx, owner, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, service.MaxPerPage, page.PerPage)
	assert.Len(t, page.Items, 1)

	page, err = svc.ListCanvases(ctx, owner, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, service.DefaultPerPage, page.PerPage)
	assert.Equal(t, int64(41), page.Total)
}

func TestDeleteCanvas_EnqueuesBlobCleanup(t *testing.T) {
	svc, mockStore, _, mockMQ, events := setupService(t)
	ctx := context.Background()
	expectAccess(mockStore, testCanvas(), ownerId, models.PermissionNone)

	assets := []models.CanvasAsset{
		{Id: assetId, CanvasId: canvasId, StorageKey: "canvases/" + canvasId + "/a.png"},
		{Id: "a2", CanvasId: canvasId, StorageKey: "canvases/" + canvasId + "/b.png"},
	}
	mockStore.On("DeleteCanvas", ctx, canvasId).Return(assets, nil)

	sendDone := wrapMockWithSignal(mockMQ.On("Send", mock.Anything, mock.MatchedBy(func(body string) bool {
		var msg worker.DeleteBlobsMessage
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			return false
		}
		return msg.CanvasId == canvasId && len(msg.StorageKeys) == 2
	})).Return(nil))

	err := svc.DeleteCanvas(ctx, owner, canvasId)
	assert.NoError(t, err)

	event := waitForEvent(t, events)
	assert.Equal(t, service.EventCanvasDeleted, event.Type)

	select {
	case <-sendDone:
	case <-time.After(1 * time.Second):
		assert.Fail(t, "timed out waiting for MQ Send")
	}
}

func TestDeleteCanvas_NoAssetsSkipsQueue(t *testing.T) {
	svc, mockStore, _, mockMQ, events := setupService(t)
	ctx := context.Background()
	expectAccess(mockStore, testCanvas(), ownerId, models.PermissionNone)
	mockStore.On("DeleteCanvas", ctx, canvasId).Return([]models.CanvasAsset{}, nil)

	assert.NoError(t, svc.DeleteCanvas(ctx, owner, canvasId))
	waitForEvent(t, events)
	mockMQ.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestDeleteCanvas_SharedAdminMayDelete(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	expectAccess(mockStore, testCanvas(), editorId, models.PermissionAdmin)
	mockStore.On("DeleteCanvas", ctx, canvasId).Return([]models.CanvasAsset{}, nil)

	assert.NoError(t, svc.DeleteCanvas(ctx, editor, canvasId))
}

func TestUpdateSession_WritesThroughWithoutSaver(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	expectAccess(mockStore, testCanvas(), editorId, models.PermissionEdit)
	mockStore.On("UpdateSessionData", ctx, canvasId, []byte(`{"zoom":2}`)).Return(nil)

	err := svc.UpdateSession(ctx, editor, canvasId, json.RawMessage(`{"zoom":2}`))
	assert.NoError(t, err)
	mockStore.AssertExpectations(t)
}

func TestUpdateSession_QueuesOnSaver(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	svc.SessionSaver = worker.NewSessionSaver(mockStore, time.Second, nil)
	expectAccess(mockStore, testCanvas(), editorId, models.PermissionEdit)

	err := svc.UpdateSession(ctx, editor, canvasId, json.RawMessage(`{"zoom":2}`))
	require.NoError(t, err)

	select {
	case save := <-svc.SessionSaver.SaveCh:
		assert.Equal(t, canvasId, save.CanvasId)
		assert.Equal(t, `{"zoom":2}`, string(save.SessionData))
	default:
		assert.Fail(t, "session save was not queued")
	}
	mockStore.AssertNotCalled(t, "UpdateSessionData", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateSession_ViewerIsDenied(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	expectAccess(mockStore, testCanvas(), viewerId, models.PermissionView)

	err := svc.UpdateSession(context.Background(), viewer, canvasId, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, service.ErrPermissionDenied)
}
