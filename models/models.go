package models

import (
	"encoding/json"
	"time"
)

type User struct {
	Id         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Provider   string `json:"provider"`
	ProviderId string `json:"providerId"`
	Created    int64  `json:"created"`
}

type Canvas struct {
	Id           string          `json:"id"`
	OwnerId      string          `json:"ownerId"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	DocumentData json.RawMessage `json:"documentData,omitempty"`
	SessionData  json.RawMessage `json:"sessionData,omitempty"`
	IsPublic     bool            `json:"isPublic"`
	Version      int             `json:"version"`
	Created      time.Time       `json:"created"`
	Updated      time.Time       `json:"updated"`
}

// CanvasUpdate carries a save. Nil fields are left untouched.
type CanvasUpdate struct {
	CanvasId     string
	DocumentData json.RawMessage
	SessionData  json.RawMessage
	Name         *string
	Description  *string
	IsPublic     *bool
}

type CanvasAsset struct {
	Id              string    `json:"id"`
	CanvasId        string    `json:"canvasId"`
	ExternalAssetId string    `json:"externalAssetId"`
	StorageKey      string    `json:"storageKey"`
	PublicUrl       string    `json:"publicUrl"`
	FileName        string    `json:"fileName"`
	FileType        string    `json:"fileType"`
	FileSize        int64     `json:"fileSize"`
	Created         time.Time `json:"created"`
}

type CanvasShare struct {
	Id              string          `json:"id"`
	CanvasId        string          `json:"canvasId"`
	GranteeUserId   string          `json:"granteeUserId"`
	GranteeEmail    string          `json:"granteeEmail,omitempty"`
	GranteeName     string          `json:"granteeName,omitempty"`
	Level           PermissionLevel `json:"permissionLevel"`
	GrantedByUserId string          `json:"grantedByUserId"`
	Created         time.Time       `json:"created"`
	Updated         time.Time       `json:"updated"`
}
