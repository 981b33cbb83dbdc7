package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/zlnvch/easel/logutils"
	"github.com/zlnvch/easel/models"
	"github.com/zlnvch/easel/store"
)

const (
	ReasonOwner              = "owner"
	ReasonPublic             = "public"
	ReasonShare              = "share"
	ReasonCanvasNotFound     = "canvas_not_found"
	ReasonNoShare            = "no_share"
	ReasonInsufficientLevel  = "insufficient_level"
	ReasonLookupFailed       = "lookup_failed"
	ReasonInvalidRequirement = "invalid_requirement"
)

// PermissionResult is the outcome of one permission evaluation. Err is set
// only when the lookup itself failed; Allowed is always false in that case.
type PermissionResult struct {
	Allowed   bool
	Effective models.PermissionLevel
	Reason    string
	Err       error
}

// EvaluatePermission loads the canvas with the caller's share and decides
// whether userId holds at least required.
func (s *Service) EvaluatePermission(ctx context.Context, userId string, canvasId string, required models.PermissionLevel) PermissionResult {
	if err := validateId("canvasId", canvasId); err != nil {
		return PermissionResult{Reason: ReasonCanvasNotFound}
	}
	_, result := s.authorize(ctx, userId, canvasId, required)
	return result
}

// CheckPermission is deny-by-default: lookup failures are logged and
// reported as false.
func (s *Service) CheckPermission(ctx context.Context, userId string, canvasId string, required models.PermissionLevel) bool {
	result := s.EvaluatePermission(ctx, userId, canvasId, required)
	if result.Err != nil {
		logutils.Log.WithError(result.Err).WithFields(logutils.Fields{
			"userId":   userId,
			"canvasId": canvasId,
			"required": required.String(),
		}).Error("permission lookup failed")
	}
	return result.Allowed
}

// EffectiveLevel returns the highest level userId holds on the canvas, or
// PermissionNone when the canvas is absent or inaccessible.
func (s *Service) EffectiveLevel(ctx context.Context, userId string, canvasId string) (models.PermissionLevel, error) {
	result := s.EvaluatePermission(ctx, userId, canvasId, models.PermissionView)
	if result.Err != nil {
		return models.PermissionNone, result.Err
	}
	return result.Effective, nil
}

func (s *Service) authorize(ctx context.Context, userId string, canvasId string, required models.PermissionLevel) (models.Canvas, PermissionResult) {
	canvas, share, err := s.Store.GetCanvasAccess(ctx, canvasId, userId)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.Canvas{}, PermissionResult{Reason: ReasonCanvasNotFound}
		}
		return models.Canvas{}, PermissionResult{Reason: ReasonLookupFailed, Err: fmt.Errorf("load canvas access: %w", err)}
	}
	return canvas, evaluateAccess(canvas, share, userId, required)
}

func evaluateAccess(canvas models.Canvas, share *models.CanvasShare, userId string, required models.PermissionLevel) PermissionResult {
	if required < models.PermissionView || required > models.PermissionAdmin {
		return PermissionResult{Reason: ReasonInvalidRequirement}
	}

	if userId != "" && canvas.OwnerId == userId {
		return PermissionResult{Allowed: true, Effective: models.PermissionAdmin, Reason: ReasonOwner}
	}

	effective := models.PermissionNone
	if share != nil && share.GranteeUserId == userId {
		effective = share.Level
	}
	if canvas.IsPublic && effective < models.PermissionView {
		effective = models.PermissionView
	}

	if canvas.IsPublic && required == models.PermissionView {
		return PermissionResult{Allowed: true, Effective: effective, Reason: ReasonPublic}
	}
	if share == nil || share.GranteeUserId != userId {
		return PermissionResult{Effective: effective, Reason: ReasonNoShare}
	}
	if !share.Level.Satisfies(required) {
		return PermissionResult{Effective: effective, Reason: ReasonInsufficientLevel}
	}
	return PermissionResult{Allowed: true, Effective: effective, Reason: ReasonShare}
}

// requireLevel maps a denied evaluation onto the caller-facing error: no
// access at all is indistinguishable from an absent canvas.
func (s *Service) requireLevel(ctx context.Context, user models.User, canvasId string, required models.PermissionLevel) (models.Canvas, PermissionResult, error) {
	if err := validateId("canvasId", canvasId); err != nil {
		return models.Canvas{}, PermissionResult{}, ErrNotFound
	}

	canvas, result := s.authorize(ctx, user.Id, canvasId, required)
	if result.Err != nil {
		return models.Canvas{}, result, result.Err
	}
	if !result.Allowed {
		return models.Canvas{}, result, deniedError(result)
	}
	return canvas, result, nil
}

// requireOwner is used by share management, which the owner alone controls.
func (s *Service) requireOwner(ctx context.Context, user models.User, canvasId string) (models.Canvas, error) {
	canvas, result, err := s.requireLevel(ctx, user, canvasId, models.PermissionView)
	if err != nil {
		return models.Canvas{}, err
	}
	if result.Reason != ReasonOwner {
		return models.Canvas{}, ErrPermissionDenied
	}
	return canvas, nil
}
