package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zlnvch/easel/models"
	"github.com/zlnvch/easel/store"
)

// ShareParams names the grantee by email or by user id. The id wins when
// both are present.
type ShareParams struct {
	GranteeEmail  string
	GranteeUserId string
	Level         string
}

func (s *Service) ShareCanvas(ctx context.Context, user models.User, canvasId string, params ShareParams) (models.CanvasShare, error) {
	level, err := models.ParsePermissionLevel(params.Level)
	if err != nil {
		return models.CanvasShare{}, newValidationError("permissionLevel", "must be one of VIEW, EDIT, ADMIN")
	}

	canvas, err := s.requireOwner(ctx, user, canvasId)
	if err != nil {
		return models.CanvasShare{}, err
	}

	grantee, err := s.resolveGrantee(ctx, params)
	if err != nil {
		return models.CanvasShare{}, err
	}
	if grantee.Id == canvas.OwnerId {
		return models.CanvasShare{}, newValidationError("grantee", "cannot share a canvas with its owner")
	}

	share, err := s.Store.UpsertShare(ctx, models.CanvasShare{
		CanvasId:        canvasId,
		GranteeUserId:   grantee.Id,
		Level:           level,
		GrantedByUserId: user.Id,
	})
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.CanvasShare{}, ErrNotFound
		}
		return models.CanvasShare{}, fmt.Errorf("upsert share: %w", err)
	}

	share.GranteeEmail = grantee.Email
	share.GranteeName = grantee.Name
	return share, nil
}

func (s *Service) resolveGrantee(ctx context.Context, params ShareParams) (models.User, error) {
	var (
		grantee models.User
		err     error
	)

	switch {
	case params.GranteeUserId != "":
		if err := validateId("granteeUserId", params.GranteeUserId); err != nil {
			return models.User{}, err
		}
		grantee, err = s.Store.GetUserById(ctx, params.GranteeUserId)
	case strings.TrimSpace(params.GranteeEmail) != "":
		grantee, err = s.Store.GetUserByEmail(ctx, strings.TrimSpace(params.GranteeEmail))
	default:
		return models.User{}, newValidationError("grantee", "granteeEmail or granteeUserId is required")
	}

	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.User{}, newValidationError("grantee", "no such user")
		}
		return models.User{}, fmt.Errorf("resolve grantee: %w", err)
	}
	return grantee, nil
}

func (s *Service) UnshareCanvas(ctx context.Context, user models.User, canvasId string, granteeUserId string) error {
	canvas, err := s.requireOwner(ctx, user, canvasId)
	if err != nil {
		return err
	}
	if err := validateId("granteeUserId", granteeUserId); err != nil {
		return err
	}

	if err := s.Store.DeleteShare(ctx, canvasId, granteeUserId); err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete share: %w", err)
	}

	// A public canvas stays viewable, so open watchers keep their stream.
	if !canvas.IsPublic {
		s.publishCanvasEvent(EventAccessRevoked, CanvasEventData{CanvasId: canvasId, UserId: granteeUserId})
	}
	return nil
}

func (s *Service) ListShares(ctx context.Context, user models.User, canvasId string) ([]models.CanvasShare, error) {
	if _, err := s.requireOwner(ctx, user, canvasId); err != nil {
		return nil, err
	}

	shares, err := s.Store.ListShares(ctx, canvasId)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	return shares, nil
}
