package rest

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/zlnvch/easel/api/response"
	"github.com/zlnvch/easel/service"
)

type canvasURI struct {
	Id string `uri:"id" binding:"required"`
}

type listCanvasesQuery struct {
	Page    int `form:"page"`
	PerPage int `form:"perPage"`
}

type createCanvasRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	DocumentData json.RawMessage `json:"documentData"`
	SessionData  json.RawMessage `json:"sessionData"`
	IsPublic     bool            `json:"isPublic"`
}

// saveCanvasRequest leaves absent fields untouched.
type saveCanvasRequest struct {
	DocumentData json.RawMessage `json:"documentData"`
	SessionData  json.RawMessage `json:"sessionData"`
	Name         *string         `json:"name"`
	Description  *string         `json:"description"`
	IsPublic     *bool           `json:"isPublic"`
}

func (h *Handler) HandleListCanvases(c *gin.Context) {
	var query listCanvasesQuery
	if !bindQuery(c, &query, bindMessages{}) {
		return
	}

	page, err := h.Service.ListCanvases(c.Request.Context(), currentUser(c), query.Page, query.PerPage)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, page)
}

func (h *Handler) HandleCreateCanvas(c *gin.Context) {
	var req createCanvasRequest
	if !bindJSON(c, &req, nil, "invalid canvas") {
		return
	}

	canvas, err := h.Service.CreateCanvas(c.Request.Context(), currentUser(c), service.CreateCanvasParams{
		Name:         req.Name,
		Description:  req.Description,
		DocumentData: req.DocumentData,
		SessionData:  req.SessionData,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, canvas)
}

func (h *Handler) HandleLoadCanvas(c *gin.Context) {
	var uri canvasURI
	if !bindURI(c, &uri) {
		return
	}

	details, err := h.Service.LoadCanvas(c.Request.Context(), currentUser(c), uri.Id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, details)
}

func (h *Handler) HandleSaveCanvas(c *gin.Context) {
	var uri canvasURI
	if !bindURI(c, &uri) {
		return
	}
	var req saveCanvasRequest
	if !bindJSON(c, &req, nil, "invalid canvas") {
		return
	}

	canvas, err := h.Service.SaveCanvas(c.Request.Context(), currentUser(c), uri.Id, service.SaveCanvasParams{
		DocumentData: req.DocumentData,
		SessionData:  req.SessionData,
		Name:         req.Name,
		Description:  req.Description,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, canvas)
}

func (h *Handler) HandleDeleteCanvas(c *gin.Context) {
	var uri canvasURI
	if !bindURI(c, &uri) {
		return
	}

	if err := h.Service.DeleteCanvas(c.Request.Context(), currentUser(c), uri.Id); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"id": uri.Id})
}
