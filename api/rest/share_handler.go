package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/zlnvch/easel/api/response"
	"github.com/zlnvch/easel/service"
)

type shareURI struct {
	Id     string `uri:"id" binding:"required"`
	UserId string `uri:"userId" binding:"required"`
}

type shareRequest struct {
	GranteeEmail    string `json:"granteeEmail" binding:"omitempty,email"`
	GranteeUserId   string `json:"granteeUserId"`
	PermissionLevel string `json:"permissionLevel" binding:"required"`
}

var shareMessages = bindMessages{
	"GranteeEmail":    {"email": "granteeEmail must be an email address"},
	"PermissionLevel": {"required": "permissionLevel is required"},
}

func (h *Handler) HandleListShares(c *gin.Context) {
	var uri canvasURI
	if !bindURI(c, &uri) {
		return
	}

	shares, err := h.Service.ListShares(c.Request.Context(), currentUser(c), uri.Id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, shares)
}

func (h *Handler) HandleShareCanvas(c *gin.Context) {
	var uri canvasURI
	if !bindURI(c, &uri) {
		return
	}
	var req shareRequest
	if !bindJSON(c, &req, shareMessages, "invalid share") {
		return
	}

	share, err := h.Service.ShareCanvas(c.Request.Context(), currentUser(c), uri.Id, service.ShareParams{
		GranteeEmail:  req.GranteeEmail,
		GranteeUserId: req.GranteeUserId,
		Level:         req.PermissionLevel,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, share)
}

func (h *Handler) HandleUnshareCanvas(c *gin.Context) {
	var uri shareURI
	if !bindURI(c, &uri) {
		return
	}

	if err := h.Service.UnshareCanvas(c.Request.Context(), currentUser(c), uri.Id, uri.UserId); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"canvasId": uri.Id, "granteeUserId": uri.UserId})
}
