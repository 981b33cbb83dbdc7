package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/easel/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) GetUser(ctx context.Context, provider string, providerId string) (models.User, error) {
	args := m.Called(ctx, provider, providerId)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) GetUserById(ctx context.Context, userId string) (models.User, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) CreateCanvas(ctx context.Context, canvas models.Canvas) (models.Canvas, error) {
	args := m.Called(ctx, canvas)
	return args.Get(0).(models.Canvas), args.Error(1)
}

func (m *MockStore) GetCanvas(ctx context.Context, canvasId string) (models.Canvas, error) {
	args := m.Called(ctx, canvasId)
	return args.Get(0).(models.Canvas), args.Error(1)
}

func (m *MockStore) GetCanvasAccess(ctx context.Context, canvasId string, userId string) (models.Canvas, *models.CanvasShare, error) {
	args := m.Called(ctx, canvasId, userId)
	var share *models.CanvasShare
	if s := args.Get(1); s != nil {
		share = s.(*models.CanvasShare)
	}
	return args.Get(0).(models.Canvas), share, args.Error(2)
}

func (m *MockStore) SaveCanvas(ctx context.Context, update models.CanvasUpdate) (models.Canvas, error) {
	args := m.Called(ctx, update)
	return args.Get(0).(models.Canvas), args.Error(1)
}

func (m *MockStore) UpdateSessionData(ctx context.Context, canvasId string, sessionData []byte) error {
	args := m.Called(ctx, canvasId, sessionData)
	return args.Error(0)
}

func (m *MockStore) ListCanvases(ctx context.Context, userId string, offset int, limit int) ([]models.Canvas, int64, error) {
	args := m.Called(ctx, userId, offset, limit)
	return args.Get(0).([]models.Canvas), args.Get(1).(int64), args.Error(2)
}

func (m *MockStore) DeleteCanvas(ctx context.Context, canvasId string) ([]models.CanvasAsset, error) {
	args := m.Called(ctx, canvasId)
	return args.Get(0).([]models.CanvasAsset), args.Error(1)
}

func (m *MockStore) UpsertShare(ctx context.Context, share models.CanvasShare) (models.CanvasShare, error) {
	args := m.Called(ctx, share)
	return args.Get(0).(models.CanvasShare), args.Error(1)
}

func (m *MockStore) DeleteShare(ctx context.Context, canvasId string, granteeUserId string) error {
	args := m.Called(ctx, canvasId, granteeUserId)
	return args.Error(0)
}

func (m *MockStore) ListShares(ctx context.Context, canvasId string) ([]models.CanvasShare, error) {
	args := m.Called(ctx, canvasId)
	return args.Get(0).([]models.CanvasShare), args.Error(1)
}

func (m *MockStore) CreateAsset(ctx context.Context, asset models.CanvasAsset) (models.CanvasAsset, error) {
	args := m.Called(ctx, asset)
	return args.Get(0).(models.CanvasAsset), args.Error(1)
}

func (m *MockStore) GetAsset(ctx context.Context, canvasId string, assetId string) (models.CanvasAsset, error) {
	args := m.Called(ctx, canvasId, assetId)
	return args.Get(0).(models.CanvasAsset), args.Error(1)
}

func (m *MockStore) ListAssets(ctx context.Context, canvasId string) ([]models.CanvasAsset, error) {
	args := m.Called(ctx, canvasId)
	return args.Get(0).([]models.CanvasAsset), args.Error(1)
}

func (m *MockStore) DeleteAsset(ctx context.Context, canvasId string, assetId string) error {
	args := m.Called(ctx, canvasId, assetId)
	return args.Error(0)
}

func (m *MockStore) DeleteAssetsIfVersion(ctx context.Context, canvasId string, expectedVersion int, assetIds []string) ([]models.CanvasAsset, error) {
	args := m.Called(ctx, canvasId, expectedVersion, assetIds)
	return args.Get(0).([]models.CanvasAsset), args.Error(1)
}
