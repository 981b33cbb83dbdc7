package store

import (
	"context"
	"errors"

	"github.com/zlnvch/easel/models"
)

type EaselStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUser(ctx context.Context, provider string, providerId string) (models.User, error)
	GetUserById(ctx context.Context, userId string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	CreateCanvas(ctx context.Context, canvas models.Canvas) (models.Canvas, error)
	// GetCanvas returns the full canvas including document and session data.
	GetCanvas(ctx context.Context, canvasId string) (models.Canvas, error)
	// GetCanvasAccess returns canvas metadata (no document or session data)
	// together with userId's share row, which is nil when the user holds none.
	GetCanvasAccess(ctx context.Context, canvasId string, userId string) (models.Canvas, *models.CanvasShare, error)
	SaveCanvas(ctx context.Context, update models.CanvasUpdate) (models.Canvas, error)
	UpdateSessionData(ctx context.Context, canvasId string, sessionData []byte) error
	ListCanvases(ctx context.Context, userId string, offset int, limit int) ([]models.Canvas, int64, error)
	// DeleteCanvas removes the canvas with its shares and assets and returns
	// the deleted assets so their blobs can be cleaned up.
	DeleteCanvas(ctx context.Context, canvasId string) ([]models.CanvasAsset, error)

	UpsertShare(ctx context.Context, share models.CanvasShare) (models.CanvasShare, error)
	DeleteShare(ctx context.Context, canvasId string, granteeUserId string) error
	ListShares(ctx context.Context, canvasId string) ([]models.CanvasShare, error)

	CreateAsset(ctx context.Context, asset models.CanvasAsset) (models.CanvasAsset, error)
	GetAsset(ctx context.Context, canvasId string, assetId string) (models.CanvasAsset, error)
	ListAssets(ctx context.Context, canvasId string) ([]models.CanvasAsset, error)
	DeleteAsset(ctx context.Context, canvasId string, assetId string) error
	// DeleteAssetsIfVersion deletes the given assets only while the canvas is
	// still at expectedVersion. Returns ErrConditionFailed otherwise.
	DeleteAssetsIfVersion(ctx context.Context, canvasId string, expectedVersion int, assetIds []string) ([]models.CanvasAsset, error)
}

var (
	ErrItemNotFound    = errors.New("item does not exist")
	ErrConditionFailed = errors.New("condition not met")
	ErrDuplicate       = errors.New("item already exists")

	// ErrEmailTaken is returned by CreateUser when the email belongs to a
	// user signed in through a different provider identity.
	ErrEmailTaken = errors.New("email already registered")
)
