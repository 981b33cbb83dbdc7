package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/zlnvch/easel/logutils"
	"github.com/zlnvch/easel/models"
	"github.com/zlnvch/easel/store"
	"github.com/zlnvch/easel/worker"
)

const defaultCanvasName = "Untitled canvas"

var errSessionNotQueued = errors.New("session autosave queue is full or stopped")

type CreateCanvasParams struct {
	Name         string
	Description  string
	DocumentData json.RawMessage
	SessionData  json.RawMessage
	IsPublic     bool
}

// SaveCanvasParams are the fields of a save. Nil fields keep their stored
// value, documentData included; metadata fields are reserved to the owner.
type SaveCanvasParams struct {
	DocumentData json.RawMessage
	SessionData  json.RawMessage
	Name         *string
	Description  *string
	IsPublic     *bool
}

type CanvasDetails struct {
	models.Canvas
	Assets     []models.CanvasAsset   `json:"assets"`
	Permission models.PermissionLevel `json:"permission"`
}

type CanvasPage struct {
	Items   []models.Canvas `json:"items"`
	Total   int64           `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"perPage"`
}

func (s *Service) CreateCanvas(ctx context.Context, user models.User, params CreateCanvasParams) (models.Canvas, error) {
	name, err := validateName(params.Name)
	if err != nil {
		return models.Canvas{}, err
	}
	description, err := validateDescription(params.Description)
	if err != nil {
		return models.Canvas{}, err
	}
	document, err := normalizeJSONObject("documentData", params.DocumentData, maxDocumentBytes)
	if err != nil {
		return models.Canvas{}, err
	}
	session, err := normalizeJSONObject("sessionData", params.SessionData, maxSessionBytes)
	if err != nil {
		return models.Canvas{}, err
	}

	canvasId, err := uuid.NewV7()
	if err != nil {
		return models.Canvas{}, err
	}

	canvas, err := s.Store.CreateCanvas(ctx, models.Canvas{
		Id:           canvasId.String(),
		OwnerId:      user.Id,
		Name:         name,
		Description:  description,
		DocumentData: document,
		SessionData:  session,
		IsPublic:     params.IsPublic,
		Version:      1,
	})
	if err != nil {
		return models.Canvas{}, fmt.Errorf("create canvas: %w", err)
	}
	return canvas, nil
}

// SaveCanvas is an upsert. A canvas that does not exist yet is created at
// version 1 and owned by the caller; an existing one needs EDIT and has its
// version incremented by exactly one.
func (s *Service) SaveCanvas(ctx context.Context, user models.User, canvasId string, params SaveCanvasParams) (models.Canvas, error) {
	update, err := buildCanvasUpdate(canvasId, params)
	if err != nil {
		return models.Canvas{}, err
	}

	canvas, result := s.authorize(ctx, user.Id, canvasId, models.PermissionEdit)
	if result.Err != nil {
		return models.Canvas{}, result.Err
	}

	if result.Reason == ReasonCanvasNotFound {
		created, err := s.createFromSave(ctx, user, update)
		if !errors.Is(err, store.ErrDuplicate) {
			return created, err
		}
		// Lost a create race; the row exists now, so this becomes a save.
		canvas, result = s.authorize(ctx, user.Id, canvasId, models.PermissionEdit)
		if result.Err != nil {
			return models.Canvas{}, result.Err
		}
	}

	if !result.Allowed {
		return models.Canvas{}, deniedError(result)
	}
	if err := restrictMetadataToOwner(canvas, result, &update); err != nil {
		return models.Canvas{}, err
	}

	saved, err := s.Store.SaveCanvas(ctx, update)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.Canvas{}, ErrNotFound
		}
		return models.Canvas{}, fmt.Errorf("save canvas: %w", err)
	}

	s.publishCanvasEvent(EventCanvasSaved, CanvasEventData{
		CanvasId: saved.Id,
		Version:  saved.Version,
		UserId:   user.Id,
	})
	return saved, nil
}

func buildCanvasUpdate(canvasId string, params SaveCanvasParams) (models.CanvasUpdate, error) {
	if err := validateId("canvasId", canvasId); err != nil {
		return models.CanvasUpdate{}, err
	}

	update := models.CanvasUpdate{CanvasId: canvasId}

	if params.DocumentData != nil {
		document, err := normalizeJSONObject("documentData", params.DocumentData, maxDocumentBytes)
		if err != nil {
			return models.CanvasUpdate{}, err
		}
		update.DocumentData = document
	}
	if params.SessionData != nil {
		session, err := normalizeJSONObject("sessionData", params.SessionData, maxSessionBytes)
		if err != nil {
			return models.CanvasUpdate{}, err
		}
		update.SessionData = session
	}
	if params.Name != nil {
		name, err := validateName(*params.Name)
		if err != nil {
			return models.CanvasUpdate{}, err
		}
		update.Name = &name
	}
	if params.Description != nil {
		description, err := validateDescription(*params.Description)
		if err != nil {
			return models.CanvasUpdate{}, err
		}
		update.Description = &description
	}
	update.IsPublic = params.IsPublic
	return update, nil
}

func (s *Service) createFromSave(ctx context.Context, user models.User, update models.CanvasUpdate) (models.Canvas, error) {
	canvas := models.Canvas{
		Id:           update.CanvasId,
		OwnerId:      user.Id,
		Name:         defaultCanvasName,
		DocumentData: update.DocumentData,
		SessionData:  update.SessionData,
		Version:      1,
	}
	if update.Name != nil {
		canvas.Name = *update.Name
	}
	if update.Description != nil {
		canvas.Description = *update.Description
	}
	if update.IsPublic != nil {
		canvas.IsPublic = *update.IsPublic
	}

	created, err := s.Store.CreateCanvas(ctx, canvas)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return models.Canvas{}, err
		}
		return models.Canvas{}, fmt.Errorf("create canvas on save: %w", err)
	}
	return created, nil
}

// restrictMetadataToOwner drops metadata a non-owner resent unchanged and
// rejects actual changes.
func restrictMetadataToOwner(canvas models.Canvas, result PermissionResult, update *models.CanvasUpdate) error {
	if result.Reason == ReasonOwner {
		return nil
	}
	if update.Name != nil {
		if *update.Name != canvas.Name {
			return ErrPermissionDenied
		}
		update.Name = nil
	}
	if update.Description != nil {
		if *update.Description != canvas.Description {
			return ErrPermissionDenied
		}
		update.Description = nil
	}
	if update.IsPublic != nil {
		if *update.IsPublic != canvas.IsPublic {
			return ErrPermissionDenied
		}
		update.IsPublic = nil
	}
	return nil
}

func deniedError(result PermissionResult) error {
	if result.Effective >= models.PermissionView {
		return ErrPermissionDenied
	}
	return ErrNotFound
}

func (s *Service) LoadCanvas(ctx context.Context, user models.User, canvasId string) (CanvasDetails, error) {
	_, result, err := s.requireLevel(ctx, user, canvasId, models.PermissionView)
	if err != nil {
		return CanvasDetails{}, err
	}

	canvas, err := s.Store.GetCanvas(ctx, canvasId)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return CanvasDetails{}, ErrNotFound
		}
		return CanvasDetails{}, fmt.Errorf("load canvas: %w", err)
	}

	assets, err := s.Store.ListAssets(ctx, canvasId)
	if err != nil {
		return CanvasDetails{}, fmt.Errorf("list assets: %w", err)
	}

	return CanvasDetails{Canvas: canvas, Assets: assets, Permission: result.Effective}, nil
}

func (s *Service) ListCanvases(ctx context.Context, user models.User, page int, perPage int) (CanvasPage, error) {
	page, perPage = normalizePagination(page, perPage)

	canvases, total, err := s.Store.ListCanvases(ctx, user.Id, (page-1)*perPage, perPage)
	if err != nil {
		return CanvasPage{}, fmt.Errorf("list canvases: %w", err)
	}

	return CanvasPage{Items: canvases, Total: total, Page: page, PerPage: perPage}, nil
}

func (s *Service) DeleteCanvas(ctx context.Context, user models.User, canvasId string) error {
	if _, _, err := s.requireLevel(ctx, user, canvasId, models.PermissionAdmin); err != nil {
		return err
	}

	assets, err := s.Store.DeleteCanvas(ctx, canvasId)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete canvas: %w", err)
	}
	if len(assets) > 0 {
		s.Metrics.RecordAssetsDeleted("canvas_deleted", len(assets))
	}

	s.publishCanvasEvent(EventCanvasDeleted, CanvasEventData{CanvasId: canvasId, UserId: user.Id})

	if len(assets) == 0 || s.MQ == nil {
		return nil
	}

	// Blob removal is async; rows are already gone so the canvas is deleted
	// from the caller's point of view.
	msg := worker.DeleteBlobsMessage{CanvasId: canvasId, StorageKeys: make([]string, 0, len(assets))}
	for _, asset := range assets {
		msg.StorageKeys = append(msg.StorageKeys, asset.StorageKey)
	}
	go func() {
		msgBytes, err := json.Marshal(msg)
		if err != nil {
			return
		}
		sendCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.MQ.Send(sendCtx, string(msgBytes)); err != nil {
			logutils.Log.WithError(err).WithFields(logutils.Fields{
				"canvasId": canvasId,
				"keys":     len(msg.StorageKeys),
			}).Error("enqueue blob cleanup failed")
		}
	}()

	return nil
}

// UpdateSession hands session data to the debounced saver. It never bumps
// the canvas version.
func (s *Service) UpdateSession(ctx context.Context, user models.User, canvasId string, sessionData json.RawMessage) error {
	if _, _, err := s.requireLevel(ctx, user, canvasId, models.PermissionEdit); err != nil {
		return err
	}

	session, err := normalizeJSONObject("sessionData", sessionData, maxSessionBytes)
	if err != nil {
		return err
	}

	if s.SessionSaver == nil {
		if err := s.Store.UpdateSessionData(ctx, canvasId, session); err != nil {
			if errors.Is(err, store.ErrItemNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("update session: %w", err)
		}
		return nil
	}

	if !s.SessionSaver.Enqueue(worker.SessionSave{CanvasId: canvasId, SessionData: session}) {
		return errSessionNotQueued
	}
	return nil
}
