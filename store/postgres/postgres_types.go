package postgres

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/zlnvch/easel/models"
)

type userRow struct {
	Id         string    `gorm:"primaryKey;type:uuid"`
	Email      string    `gorm:"size:320;not null"`
	Name       string    `gorm:"size:120;not null"`
	Provider   string    `gorm:"size:32;not null;uniqueIndex:idx_users_provider_identity"`
	ProviderId string    `gorm:"size:128;not null;uniqueIndex:idx_users_provider_identity"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (userRow) TableName() string { return "users" }

type canvasRow struct {
	Id           string         `gorm:"primaryKey;type:uuid"`
	OwnerId      string         `gorm:"type:uuid;index;not null"`
	Name         string         `gorm:"size:120;not null"`
	Description  string         `gorm:"not null"`
	DocumentData datatypes.JSON `gorm:"type:jsonb;not null"`
	SessionData  datatypes.JSON `gorm:"type:jsonb;not null"`
	IsPublic     bool           `gorm:"not null;default:false"`
	Version      int            `gorm:"not null;default:1"`
	CreatedAt    time.Time      `gorm:"not null"`
	UpdatedAt    time.Time      `gorm:"not null"`
	Shares       []shareRow     `gorm:"foreignKey:CanvasId"`
}

func (canvasRow) TableName() string { return "canvases" }

// canvasMetadataColumns excludes the JSON payloads, which can be megabytes.
var canvasMetadataColumns = []string{
	"id", "owner_id", "name", "description", "is_public", "version", "created_at", "updated_at",
}

type shareRow struct {
	Id              string    `gorm:"primaryKey;type:uuid"`
	CanvasId        string    `gorm:"type:uuid;not null"`
	GranteeUserId   string    `gorm:"type:uuid;not null"`
	PermissionLevel string    `gorm:"size:8;not null"`
	GrantedByUserId string    `gorm:"type:uuid;not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (shareRow) TableName() string { return "canvas_shares" }

// shareWithGranteeRow is the result of joining canvas_shares with users.
type shareWithGranteeRow struct {
	shareRow
	GranteeEmail string
	GranteeName  string
}

type assetRow struct {
	Id              string    `gorm:"primaryKey;type:uuid"`
	CanvasId        string    `gorm:"type:uuid;index;not null"`
	ExternalAssetId string    `gorm:"size:255;not null"`
	StorageKey      string    `gorm:"size:1024;not null"`
	PublicUrl       string    `gorm:"not null"`
	FileName        string    `gorm:"size:255;not null"`
	FileType        string    `gorm:"size:127;not null"`
	FileSize        int64     `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (assetRow) TableName() string { return "canvas_assets" }

func userToRow(user models.User) userRow {
	row := userRow{
		Id:         user.Id,
		Email:      user.Email,
		Name:       user.Name,
		Provider:   user.Provider,
		ProviderId: user.ProviderId,
	}
	if user.Created != 0 {
		row.CreatedAt = time.Unix(user.Created, 0).UTC()
	}
	return row
}

func userFromRow(row userRow) models.User {
	return models.User{
		Id:         row.Id,
		Email:      row.Email,
		Name:       row.Name,
		Provider:   row.Provider,
		ProviderId: row.ProviderId,
		Created:    row.CreatedAt.Unix(),
	}
}

func canvasToRow(canvas models.Canvas) canvasRow {
	return canvasRow{
		Id:           canvas.Id,
		OwnerId:      canvas.OwnerId,
		Name:         canvas.Name,
		Description:  canvas.Description,
		DocumentData: jsonOrEmptyObject(canvas.DocumentData),
		SessionData:  jsonOrEmptyObject(canvas.SessionData),
		IsPublic:     canvas.IsPublic,
		Version:      canvas.Version,
		CreatedAt:    canvas.Created,
		UpdatedAt:    canvas.Updated,
	}
}

func canvasFromRow(row canvasRow) models.Canvas {
	c := models.Canvas{
		Id:          row.Id,
		OwnerId:     row.OwnerId,
		Name:        row.Name,
		Description: row.Description,
		IsPublic:    row.IsPublic,
		Version:     row.Version,
		Created:     row.CreatedAt,
		Updated:     row.UpdatedAt,
	}
	if len(row.DocumentData) > 0 {
		c.DocumentData = json.RawMessage(row.DocumentData)
	}
	if len(row.SessionData) > 0 {
		c.SessionData = json.RawMessage(row.SessionData)
	}
	return c
}

func shareToRow(share models.CanvasShare) shareRow {
	return shareRow{
		Id:              share.Id,
		CanvasId:        share.CanvasId,
		GranteeUserId:   share.GranteeUserId,
		PermissionLevel: share.Level.String(),
		GrantedByUserId: share.GrantedByUserId,
		CreatedAt:       share.Created,
		UpdatedAt:       share.Updated,
	}
}

func shareFromRow(row shareRow) (models.CanvasShare, error) {
	level, err := models.ParsePermissionLevel(row.PermissionLevel)
	if err != nil {
		return models.CanvasShare{}, err
	}
	return models.CanvasShare{
		Id:              row.Id,
		CanvasId:        row.CanvasId,
		GranteeUserId:   row.GranteeUserId,
		Level:           level,
		GrantedByUserId: row.GrantedByUserId,
		Created:         row.CreatedAt,
		Updated:         row.UpdatedAt,
	}, nil
}

func assetToRow(asset models.CanvasAsset) assetRow {
	return assetRow{
		Id:              asset.Id,
		CanvasId:        asset.CanvasId,
		ExternalAssetId: asset.ExternalAssetId,
		StorageKey:      asset.StorageKey,
		PublicUrl:       asset.PublicUrl,
		FileName:        asset.FileName,
		FileType:        asset.FileType,
		FileSize:        asset.FileSize,
		CreatedAt:       asset.Created,
	}
}

func assetFromRow(row assetRow) models.CanvasAsset {
	return models.CanvasAsset{
		Id:              row.Id,
		CanvasId:        row.CanvasId,
		ExternalAssetId: row.ExternalAssetId,
		StorageKey:      row.StorageKey,
		PublicUrl:       row.PublicUrl,
		FileName:        row.FileName,
		FileType:        row.FileType,
		FileSize:        row.FileSize,
		Created:         row.CreatedAt,
	}
}

func assetsFromRows(rows []assetRow) []models.CanvasAsset {
	assets := make([]models.CanvasAsset, 0, len(rows))
	for _, row := range rows {
		assets = append(assets, assetFromRow(row))
	}
	return assets
}

func jsonOrEmptyObject(data json.RawMessage) datatypes.JSON {
	if len(data) == 0 {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}
