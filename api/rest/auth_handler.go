package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/zlnvch/easel/api/response"
	"github.com/zlnvch/easel/logutils"
	"github.com/zlnvch/easel/models"
	"github.com/zlnvch/easel/service"
)

type loginRequest struct {
	Provider string `json:"provider" binding:"required,oneof=github google"`
	Code     string `json:"code" binding:"required"`
}

var loginMessages = bindMessages{
	"Provider": {"required": "provider is required", "oneof": "provider must be github or google"},
	"Code":     {"required": "code is required"},
}

type loginResponse struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

func (h *Handler) HandleLogin(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req, loginMessages, "invalid login request") {
		return
	}

	user, token, err := h.Service.Login(c.Request.Context(), req.Provider, req.Code)
	if service.IsValidationError(err) {
		respondError(c, err)
		return
	}
	if err != nil {
		logutils.Log.WithError(err).WithField("provider", req.Provider).Warn("login failed")
		response.UnauthorizedError(c, "login failed")
		return
	}

	response.Success(c, loginResponse{User: user, Token: token})
}

func (h *Handler) HandleMe(c *gin.Context) {
	response.Success(c, currentUser(c))
}
