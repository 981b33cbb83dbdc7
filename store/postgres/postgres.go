package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/zlnvch/easel/models"
	"github.com/zlnvch/easel/store"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type PostgresEaselStore struct {
	db *gorm.DB
}

func NewPostgresEaselStore(ctx context.Context, databaseURL string, pool PoolConfig) (*PostgresEaselStore, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is not set")
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresEaselStore{db: db}, nil
}

func (s *PostgresEaselStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresEaselStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	userId, err := uuid.NewV7()
	if err != nil {
		return models.User{}, err
	}
	user.Id = userId.String()

	row := userToRow(user)
	// Returning users keep their id; email and name follow the provider profile.
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		err = translateError(err)
		// The identity conflict is handled above, so a duplicate here is the email index.
		if errors.Is(err, store.ErrDuplicate) {
			return models.User{}, store.ErrEmailTaken
		}
		return models.User{}, err
	}

	return s.GetUser(ctx, user.Provider, user.ProviderId)
}

func (s *PostgresEaselStore) GetUser(ctx context.Context, provider string, providerId string) (models.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).
		Where("provider = ? AND provider_id = ?", provider, providerId).
		First(&row).Error
	if err != nil {
		return models.User{}, translateError(err)
	}
	return userFromRow(row), nil
}

func (s *PostgresEaselStore) GetUserById(ctx context.Context, userId string) (models.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", userId).Error; err != nil {
		return models.User{}, translateError(err)
	}
	return userFromRow(row), nil
}

func (s *PostgresEaselStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, "LOWER(email) = LOWER(?)", email).Error; err != nil {
		return models.User{}, translateError(err)
	}
	return userFromRow(row), nil
}

func (s *PostgresEaselStore) CreateCanvas(ctx context.Context, canvas models.Canvas) (models.Canvas, error) {
	row := canvasToRow(canvas)
	row.Version = 1
	if err := s.db.WithContext(ctx).Omit("Shares").Create(&row).Error; err != nil {
		return models.Canvas{}, translateError(err)
	}
	return canvasFromRow(row), nil
}

func (s *PostgresEaselStore) GetCanvas(ctx context.Context, canvasId string) (models.Canvas, error) {
	var row canvasRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", canvasId).Error; err != nil {
		return models.Canvas{}, translateError(err)
	}
	return canvasFromRow(row), nil
}

func (s *PostgresEaselStore) GetCanvasAccess(ctx context.Context, canvasId string, userId string) (models.Canvas, *models.CanvasShare, error) {
	var row canvasRow
	err := s.db.WithContext(ctx).
		Select(canvasMetadataColumns).
		Preload("Shares", "grantee_user_id = ?", userId).
		First(&row, "id = ?", canvasId).Error
	if err != nil {
		return models.Canvas{}, nil, translateError(err)
	}

	canvas := canvasFromRow(row)
	if len(row.Shares) == 0 {
		return canvas, nil, nil
	}
	share, err := shareFromRow(row.Shares[0])
	if err != nil {
		return models.Canvas{}, nil, err
	}
	return canvas, &share, nil
}

// SaveCanvas increments version inside the UPDATE itself so two concurrent
// saves can never apply the same pre-increment version.
func (s *PostgresEaselStore) SaveCanvas(ctx context.Context, update models.CanvasUpdate) (models.Canvas, error) {
	updates := map[string]any{
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now().UTC(),
	}
	if update.DocumentData != nil {
		updates["document_data"] = datatypes.JSON(update.DocumentData)
	}
	if update.SessionData != nil {
		updates["session_data"] = datatypes.JSON(update.SessionData)
	}
	if update.Name != nil {
		updates["name"] = *update.Name
	}
	if update.Description != nil {
		updates["description"] = *update.Description
	}
	if update.IsPublic != nil {
		updates["is_public"] = *update.IsPublic
	}

	var rows []canvasRow
	result := s.db.WithContext(ctx).
		Model(&rows).
		Clauses(clause.Returning{}).
		Where("id = ?", update.CanvasId).
		Updates(updates)
	if result.Error != nil {
		return models.Canvas{}, translateError(result.Error)
	}
	if result.RowsAffected == 0 || len(rows) == 0 {
		return models.Canvas{}, store.ErrItemNotFound
	}
	return canvasFromRow(rows[0]), nil
}

func (s *PostgresEaselStore) UpdateSessionData(ctx context.Context, canvasId string, sessionData []byte) error {
	result := s.db.WithContext(ctx).
		Model(&canvasRow{}).
		Where("id = ?", canvasId).
		Updates(map[string]any{
			"session_data": jsonOrEmptyObject(sessionData),
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrItemNotFound
	}
	return nil
}

const visibleCanvasCondition = `owner_id = ? OR is_public = TRUE OR EXISTS (
	SELECT 1 FROM canvas_shares
	WHERE canvas_shares.canvas_id = canvases.id AND canvas_shares.grantee_user_id = ?
)`

func (s *PostgresEaselStore) ListCanvases(ctx context.Context, userId string, offset int, limit int) ([]models.Canvas, int64, error) {
	visible := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&canvasRow{}).Where(visibleCanvasCondition, userId, userId)
	}

	var total int64
	if err := visible().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []canvasRow
	err := visible().
		Select(canvasMetadataColumns).
		Order("updated_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	canvases := make([]models.Canvas, 0, len(rows))
	for _, row := range rows {
		canvases = append(canvases, canvasFromRow(row))
	}
	return canvases, total, nil
}

func (s *PostgresEaselStore) DeleteCanvas(ctx context.Context, canvasId string) ([]models.CanvasAsset, error) {
	var assets []assetRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var canvas canvasRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&canvas, "id = ?", canvasId).Error
		if err != nil {
			return err
		}

		if err := tx.Where("canvas_id = ?", canvasId).Find(&assets).Error; err != nil {
			return err
		}
		if err := tx.Where("canvas_id = ?", canvasId).Delete(&assetRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("canvas_id = ?", canvasId).Delete(&shareRow{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", canvasId).Delete(&canvasRow{}).Error
	})
	if err != nil {
		return nil, translateError(err)
	}
	return assetsFromRows(assets), nil
}

func (s *PostgresEaselStore) UpsertShare(ctx context.Context, share models.CanvasShare) (models.CanvasShare, error) {
	shareId, err := uuid.NewV7()
	if err != nil {
		return models.CanvasShare{}, err
	}
	share.Id = shareId.String()

	row := shareToRow(share)
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "canvas_id"}, {Name: "grantee_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"permission_level", "granted_by_user_id", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return models.CanvasShare{}, translateError(err)
	}

	// On conflict the stored row keeps its original id, so read it back.
	var stored shareRow
	err = s.db.WithContext(ctx).
		First(&stored, "canvas_id = ? AND grantee_user_id = ?", share.CanvasId, share.GranteeUserId).Error
	if err != nil {
		return models.CanvasShare{}, translateError(err)
	}
	return shareFromRow(stored)
}

func (s *PostgresEaselStore) DeleteShare(ctx context.Context, canvasId string, granteeUserId string) error {
	result := s.db.WithContext(ctx).
		Where("canvas_id = ? AND grantee_user_id = ?", canvasId, granteeUserId).
		Delete(&shareRow{})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrItemNotFound
	}
	return nil
}

func (s *PostgresEaselStore) ListShares(ctx context.Context, canvasId string) ([]models.CanvasShare, error) {
	var rows []shareWithGranteeRow
	err := s.db.WithContext(ctx).
		Table("canvas_shares").
		Select("canvas_shares.*, users.email AS grantee_email, users.name AS grantee_name").
		Joins("JOIN users ON users.id = canvas_shares.grantee_user_id").
		Where("canvas_shares.canvas_id = ?", canvasId).
		Order("canvas_shares.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	shares := make([]models.CanvasShare, 0, len(rows))
	for _, row := range rows {
		share, err := shareFromRow(row.shareRow)
		if err != nil {
			return nil, err
		}
		share.GranteeEmail = row.GranteeEmail
		share.GranteeName = row.GranteeName
		shares = append(shares, share)
	}
	return shares, nil
}

func (s *PostgresEaselStore) CreateAsset(ctx context.Context, asset models.CanvasAsset) (models.CanvasAsset, error) {
	assetId, err := uuid.NewV7()
	if err != nil {
		return models.CanvasAsset{}, err
	}
	asset.Id = assetId.String()

	row := assetToRow(asset)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.CanvasAsset{}, translateError(err)
	}
	return assetFromRow(row), nil
}

func (s *PostgresEaselStore) GetAsset(ctx context.Context, canvasId string, assetId string) (models.CanvasAsset, error) {
	var row assetRow
	err := s.db.WithContext(ctx).First(&row, "id = ? AND canvas_id = ?", assetId, canvasId).Error
	if err != nil {
		return models.CanvasAsset{}, translateError(err)
	}
	return assetFromRow(row), nil
}

func (s *PostgresEaselStore) ListAssets(ctx context.Context, canvasId string) ([]models.CanvasAsset, error) {
	var rows []assetRow
	err := s.db.WithContext(ctx).
		Where("canvas_id = ?", canvasId).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return assetsFromRows(rows), nil
}

func (s *PostgresEaselStore) DeleteAsset(ctx context.Context, canvasId string, assetId string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND canvas_id = ?", assetId, canvasId).
		Delete(&assetRow{})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrItemNotFound
	}
	return nil
}

func (s *PostgresEaselStore) DeleteAssetsIfVersion(ctx context.Context, canvasId string, expectedVersion int, assetIds []string) ([]models.CanvasAsset, error) {
	if len(assetIds) == 0 {
		return []models.CanvasAsset{}, nil
	}

	var deleted []assetRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Holding the row lock blocks concurrent saves until the delete commits.
		var canvas canvasRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "version").
			First(&canvas, "id = ?", canvasId).Error
		if err != nil {
			return err
		}
		if canvas.Version != expectedVersion {
			return store.ErrConditionFailed
		}

		return tx.Clauses(clause.Returning{}).
			Where("canvas_id = ? AND id IN ?", canvasId, assetIds).
			Delete(&deleted).Error
	})
	if err != nil {
		return nil, translateError(err)
	}
	return assetsFromRows(deleted), nil
}

func translateError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrItemNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrDuplicate
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return store.ErrItemNotFound
	default:
		return err
	}
}
