package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/zlnvch/easel/api/response"
	"github.com/zlnvch/easel/service"
)

type assetURI struct {
	Id      string `uri:"id" binding:"required"`
	AssetId string `uri:"assetId" binding:"required"`
}

type uploadRequest struct {
	FileName string `json:"fileName" binding:"required"`
	FileType string `json:"fileType" binding:"required"`
	FileSize int64  `json:"fileSize" binding:"required,gt=0"`
}

var uploadMessages = bindMessages{
	"FileName": {"required": "fileName is required"},
	"FileType": {"required": "fileType is required"},
	"FileSize": {"required": "fileSize is required", "gt": "fileSize must be positive"},
}

type createAssetRequest struct {
	ExternalAssetId string `json:"externalAssetId" binding:"required"`
	StorageKey      string `json:"storageKey" binding:"required"`
	FileName        string `json:"fileName"`
	FileType        string `json:"fileType" binding:"required"`
	FileSize        int64  `json:"fileSize" binding:"required,gt=0"`
}

var createAssetMessages = bindMessages{
	"ExternalAssetId": {"required": "externalAssetId is required"},
	"StorageKey":      {"required": "storageKey is required"},
	"FileType":        {"required": "fileType is required"},
	"FileSize":        {"required": "fileSize is required", "gt": "fileSize must be positive"},
}

func (h *Handler) HandleListAssets(c *gin.Context) {
	var uri canvasURI
	if !bindURI(c, &uri) {
		return
	}

	assets, err := h.Service.ListAssets(c.Request.Context(), currentUser(c), uri.Id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, assets)
}

func (h *Handler) HandleRequestUpload(c *gin.Context) {
	var uri canvasURI
	if !bindURI(c, &uri) {
		return
	}
	var req uploadRequest
	if !bindJSON(c, &req, uploadMessages, "invalid upload request") {
		return
	}

	ticket, err := h.Service.RequestUpload(c.Request.Context(), currentUser(c), uri.Id, service.UploadRequest{
		FileName: req.FileName,
		FileType: req.FileType,
		FileSize: req.FileSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, ticket)
}

func (h *Handler) HandleCreateAssetRecord(c *gin.Context) {
	var uri canvasURI
	if !bindURI(c, &uri) {
		return
	}
	var req createAssetRequest
	if !bindJSON(c, &req, createAssetMessages, "invalid asset") {
		return
	}

	asset, err := h.Service.CreateAssetRecord(c.Request.Context(), currentUser(c), uri.Id, service.CreateAssetParams{
		ExternalAssetId: req.ExternalAssetId,
		StorageKey:      req.StorageKey,
		FileName:        req.FileName,
		FileType:        req.FileType,
		FileSize:        req.FileSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, asset)
}

func (h *Handler) HandleDeleteAsset(c *gin.Context) {
	var uri assetURI
	if !bindURI(c, &uri) {
		return
	}

	if err := h.Service.DeleteAsset(c.Request.Context(), currentUser(c), uri.Id, uri.AssetId); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"id": uri.AssetId})
}

func (h *Handler) HandleGetDownloadURL(c *gin.Context) {
	var uri assetURI
	if !bindURI(c, &uri) {
		return
	}

	download, err := h.Service.GetDownloadURL(c.Request.Context(), currentUser(c), uri.Id, uri.AssetId)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, download)
}

// HandleCleanupAssets reports an aborted sweep as a success with aborted set;
// the client retries after its next save settles.
func (h *Handler) HandleCleanupAssets(c *gin.Context) {
	var uri canvasURI
	if !bindURI(c, &uri) {
		return
	}

	result, err := h.Service.CleanupOrphanedAssets(c.Request.Context(), currentUser(c), uri.Id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}
