package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/zlnvch/easel/service"
)

type Handler struct {
	Service *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{Service: svc}
}

// RegisterPublic mounts the routes that need no token.
func (h *Handler) RegisterPublic(group *gin.RouterGroup) {
	group.POST("/login", h.HandleLogin)
}

// RegisterProtected mounts the routes behind Authenticate. uploads limits
// presigned upload requests on top of the group's own middleware.
func (h *Handler) RegisterProtected(group *gin.RouterGroup, uploads gin.HandlerFunc) {
	group.GET("/me", h.HandleMe)

	canvases := group.Group("/canvases")
	canvases.GET("", h.HandleListCanvases)
	canvases.POST("", h.HandleCreateCanvas)
	canvases.GET("/:id", h.HandleLoadCanvas)
	canvases.PUT("/:id", h.HandleSaveCanvas)
	canvases.DELETE("/:id", h.HandleDeleteCanvas)

	canvases.GET("/:id/shares", h.HandleListShares)
	canvases.PUT("/:id/shares", h.HandleShareCanvas)
	canvases.DELETE("/:id/shares/:userId", h.HandleUnshareCanvas)

	canvases.GET("/:id/assets", h.HandleListAssets)
	if uploads != nil {
		canvases.POST("/:id/assets/uploads", uploads, h.HandleRequestUpload)
	} else {
		canvases.POST("/:id/assets/uploads", h.HandleRequestUpload)
	}
	canvases.POST("/:id/assets", h.HandleCreateAssetRecord)
	canvases.POST("/:id/assets/cleanup", h.HandleCleanupAssets)
	canvases.DELETE("/:id/assets/:assetId", h.HandleDeleteAsset)
	canvases.GET("/:id/assets/:assetId/download", h.HandleGetDownloadURL)
}
