package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/zlnvch/easel/blob"
	"github.com/zlnvch/easel/logutils"
	"github.com/zlnvch/easel/models"
	"github.com/zlnvch/easel/store"
)

type UploadRequest struct {
	FileName string
	FileType string
	FileSize int64
}

// UploadTicket is handed to the client, which PUTs the file straight to
// object storage and then registers it with CreateAssetRecord.
type UploadTicket struct {
	Upload     blob.PresignedRequest `json:"upload"`
	StorageKey string                `json:"storageKey"`
	PublicUrl  string                `json:"publicUrl"`
	FileName   string                `json:"fileName"`
	FileType   string                `json:"fileType"`
	ExpiresAt  time.Time             `json:"expiresAt"`
}

type CreateAssetParams struct {
	ExternalAssetId string
	StorageKey      string
	FileName        string
	FileType        string
	FileSize        int64
}

type CleanupResult struct {
	Deleted []models.CanvasAsset `json:"deleted"`
	// Skipped counts unreferenced assets still inside the grace period.
	Skipped int `json:"skipped"`
	// Aborted is set when the canvas was saved while cleanup ran; nothing
	// was deleted and the caller may retry.
	Aborted bool `json:"aborted"`
}

func (s *Service) RequestUpload(ctx context.Context, user models.User, canvasId string, req UploadRequest) (UploadTicket, error) {
	fileType, err := normalizeFileType(req.FileType)
	if err != nil {
		return UploadTicket{}, err
	}
	if err := validateFileSize(req.FileSize, s.Options.MaxAssetBytes); err != nil {
		return UploadTicket{}, err
	}

	if _, _, err := s.requireLevel(ctx, user, canvasId, models.PermissionEdit); err != nil {
		return UploadTicket{}, err
	}

	objectId, err := uuid.NewV7()
	if err != nil {
		return UploadTicket{}, err
	}
	fileName := sanitizeFileName(req.FileName)
	storageKey := canvasKeyPrefix(canvasId) + objectId.String() + "-" + fileName

	upload, err := s.Blobs.PresignPut(ctx, storageKey, fileType, req.FileSize, s.Options.UploadURLTTL)
	if err != nil {
		return UploadTicket{}, fmt.Errorf("presign upload: %w", err)
	}

	s.Metrics.RecordUploadRequested(fileType)

	return UploadTicket{
		Upload:     upload,
		StorageKey: storageKey,
		PublicUrl:  s.Blobs.PublicURL(storageKey),
		FileName:   fileName,
		FileType:   fileType,
		ExpiresAt:  upload.Expires,
	}, nil
}

func (s *Service) CreateAssetRecord(ctx context.Context, user models.User, canvasId string, params CreateAssetParams) (models.CanvasAsset, error) {
	if _, _, err := s.requireLevel(ctx, user, canvasId, models.PermissionEdit); err != nil {
		return models.CanvasAsset{}, err
	}

	externalAssetId, err := validateExternalAssetId(params.ExternalAssetId)
	if err != nil {
		return models.CanvasAsset{}, err
	}
	if err := validateStorageKey(canvasId, params.StorageKey); err != nil {
		return models.CanvasAsset{}, err
	}
	fileType, err := normalizeFileType(params.FileType)
	if err != nil {
		return models.CanvasAsset{}, err
	}
	if err := validateFileSize(params.FileSize, s.Options.MaxAssetBytes); err != nil {
		return models.CanvasAsset{}, err
	}

	storedSize, err := s.Blobs.ObjectSize(ctx, params.StorageKey)
	if err != nil {
		if errors.Is(err, blob.ErrObjectNotFound) {
			return models.CanvasAsset{}, newValidationError("storageKey", "has no uploaded object")
		}
		return models.CanvasAsset{}, fmt.Errorf("stat uploaded object: %w", err)
	}
	if storedSize != params.FileSize {
		return models.CanvasAsset{}, newValidationError("fileSize", "does not match the uploaded object")
	}

	asset, err := s.Store.CreateAsset(ctx, models.CanvasAsset{
		CanvasId:        canvasId,
		ExternalAssetId: externalAssetId,
		StorageKey:      params.StorageKey,
		PublicUrl:       s.Blobs.PublicURL(params.StorageKey),
		FileName:        sanitizeFileName(params.FileName),
		FileType:        fileType,
		FileSize:        params.FileSize,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return models.CanvasAsset{}, newValidationError("storageKey", "is already registered")
		case errors.Is(err, store.ErrItemNotFound):
			return models.CanvasAsset{}, ErrNotFound
		}
		return models.CanvasAsset{}, fmt.Errorf("create asset: %w", err)
	}

	s.publishCanvasEvent(EventAssetsChanged, CanvasEventData{CanvasId: canvasId, UserId: user.Id})
	return asset, nil
}

// DeleteAsset removes the blob first and the row second. A failed blob
// delete is logged and does not block the row delete.
func (s *Service) DeleteAsset(ctx context.Context, user models.User, canvasId string, assetId string) error {
	if _, _, err := s.requireLevel(ctx, user, canvasId, models.PermissionEdit); err != nil {
		return err
	}

	asset, err := s.getAsset(ctx, canvasId, assetId)
	if err != nil {
		return err
	}

	s.deleteBlobs(ctx, canvasId, []models.CanvasAsset{asset})

	if err := s.Store.DeleteAsset(ctx, canvasId, assetId); err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete asset: %w", err)
	}
	s.Metrics.RecordAssetsDeleted("deleted", 1)

	s.publishCanvasEvent(EventAssetsChanged, CanvasEventData{CanvasId: canvasId, UserId: user.Id})
	return nil
}

func (s *Service) ListAssets(ctx context.Context, user models.User, canvasId string) ([]models.CanvasAsset, error) {
	if _, _, err := s.requireLevel(ctx, user, canvasId, models.PermissionView); err != nil {
		return nil, err
	}

	assets, err := s.Store.ListAssets(ctx, canvasId)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return assets, nil
}

func (s *Service) GetDownloadURL(ctx context.Context, user models.User, canvasId string, assetId string) (blob.PresignedRequest, error) {
	if _, _, err := s.requireLevel(ctx, user, canvasId, models.PermissionView); err != nil {
		return blob.PresignedRequest{}, err
	}

	asset, err := s.getAsset(ctx, canvasId, assetId)
	if err != nil {
		return blob.PresignedRequest{}, err
	}

	download, err := s.Blobs.PresignGet(ctx, asset.StorageKey, s.Options.DownloadURLTTL)
	if err != nil {
		return blob.PresignedRequest{}, fmt.Errorf("presign download: %w", err)
	}
	return download, nil
}

// CleanupOrphanedAssets deletes assets the saved document no longer
// references. Assets younger than the grace period are kept since a client
// may have uploaded them without saving yet. The delete only commits while
// the canvas is still at the version the document was read from.
func (s *Service) CleanupOrphanedAssets(ctx context.Context, user models.User, canvasId string) (CleanupResult, error) {
	if _, _, err := s.requireLevel(ctx, user, canvasId, models.PermissionEdit); err != nil {
		return CleanupResult{}, err
	}

	canvas, err := s.Store.GetCanvas(ctx, canvasId)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return CleanupResult{}, ErrNotFound
		}
		return CleanupResult{}, fmt.Errorf("load canvas: %w", err)
	}

	referenced, err := collectReferencedStrings(canvas.DocumentData)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("scan document: %w", err)
	}

	assets, err := s.Store.ListAssets(ctx, canvasId)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("list assets: %w", err)
	}

	result := CleanupResult{Deleted: []models.CanvasAsset{}}
	cutoff := time.Now().Add(-s.Options.CleanupGracePeriod)
	var orphanIds []string
	for _, asset := range assets {
		if isReferenced(asset, referenced) {
			continue
		}
		if asset.Created.After(cutoff) {
			result.Skipped++
			continue
		}
		orphanIds = append(orphanIds, asset.Id)
	}
	if len(orphanIds) == 0 {
		return result, nil
	}

	deleted, err := s.Store.DeleteAssetsIfVersion(ctx, canvasId, canvas.Version, orphanIds)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConditionFailed):
			logutils.Log.WithFields(logutils.Fields{
				"canvasId": canvasId,
				"version":  canvas.Version,
			}).Info("asset cleanup aborted by concurrent save")
			result.Aborted = true
			return result, nil
		case errors.Is(err, store.ErrItemNotFound):
			return CleanupResult{}, ErrNotFound
		}
		return CleanupResult{}, fmt.Errorf("delete orphaned assets: %w", err)
	}
	if len(deleted) == 0 {
		return result, nil
	}

	result.Deleted = deleted
	s.deleteBlobs(ctx, canvasId, deleted)
	s.Metrics.RecordAssetsDeleted("orphaned", len(deleted))

	s.publishCanvasEvent(EventAssetsChanged, CanvasEventData{CanvasId: canvasId, UserId: user.Id})
	return result, nil
}

func (s *Service) getAsset(ctx context.Context, canvasId string, assetId string) (models.CanvasAsset, error) {
	if err := validateId("assetId", assetId); err != nil {
		return models.CanvasAsset{}, ErrNotFound
	}

	asset, err := s.Store.GetAsset(ctx, canvasId, assetId)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.CanvasAsset{}, ErrNotFound
		}
		return models.CanvasAsset{}, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

func (s *Service) deleteBlobs(ctx context.Context, canvasId string, assets []models.CanvasAsset) {
	for _, asset := range assets {
		if err := s.Blobs.Delete(ctx, asset.StorageKey); err != nil {
			s.Metrics.RecordBlobDeleteFailure()
			logutils.Log.WithError(err).WithFields(logutils.Fields{
				"canvasId":   canvasId,
				"storageKey": asset.StorageKey,
			}).Warn("blob delete failed")
		}
	}
}

func isReferenced(asset models.CanvasAsset, referenced map[string]struct{}) bool {
	for _, candidate := range []string{asset.ExternalAssetId, asset.Id, asset.StorageKey, asset.PublicUrl} {
		if candidate == "" {
			continue
		}
		if _, ok := referenced[candidate]; ok {
			return true
		}
	}
	return false
}

// collectReferencedStrings returns every string in the document, object
// keys included, so id-keyed maps like {"files": {"<id>": ...}} count.
func collectReferencedStrings(document json.RawMessage) (map[string]struct{}, error) {
	referenced := make(map[string]struct{})
	if len(document) == 0 {
		return referenced, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(document))
	decoder.UseNumber()
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return referenced, nil
		}
		if err != nil {
			return nil, err
		}
		if str, ok := token.(string); ok {
			referenced[str] = struct{}{}
		}
	}
}
