package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/zlnvch/easel/logutils"
	"github.com/zlnvch/easel/models"
	"github.com/zlnvch/easel/service"
)

const Subprotocol = "easel-v1"

const requestTimeout = 10 * time.Second

type Handler struct {
	Service     *service.Service
	Hub         *Hub
	upgrader    websocket.Upgrader
	shutdownCtx context.Context
}

func NewHandler(svc *service.Service, hub *Hub, allowedOrigin string, shutdownCtx context.Context) *Handler {
	return &Handler{
		Service:     svc,
		Hub:         hub,
		upgrader:    NewWsUpgrader(allowedOrigin),
		shutdownCtx: shutdownCtx,
	}
}

// NewWsUpgrader accepts any origin when allowedOrigin is empty or "*".
func NewWsUpgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
		Subprotocols: []string{Subprotocol},
	}
}

// tokenFromSubprotocols reads "easel-v1, <token>" from Sec-WebSocket-Protocol.
func tokenFromSubprotocols(r *http.Request) (string, bool) {
	protocols := websocket.Subprotocols(r)
	if len(protocols) != 2 || protocols[0] != Subprotocol {
		return "", false
	}
	return strings.TrimSpace(protocols[1]), true
}

// ServeWS handles websocket requests from the peer.
func (h *Handler) ServeWS(c *gin.Context) {
	token, ok := tokenFromSubprotocols(c.Request)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	user, authErr := h.Service.AuthenticateToken(c.Request.Context(), token)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logutils.Log.WithError(err).Warn("failed to upgrade websocket connection")
		return
	}

	// Must upgrade the connection in order to be able to send custom close message
	if authErr != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unauthenticated"),
		)
		conn.Close()
		return
	}

	client := NewClient(h.shutdownCtx, h.Hub, conn, user, h.HandleWsMessage)

	select {
	case h.Hub.OpenCh <- client:
	case <-h.shutdownCtx.Done():
		conn.Close()
		return
	}

	go client.ReadPump()
	go client.WritePump()
}

// Websocket message structs
type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type watchMessage struct {
	CanvasId string `json:"canvasId"`
}

type sessionMessage struct {
	CanvasId    string          `json:"canvasId"`
	SessionData json.RawMessage `json:"sessionData"`
}

type responseMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type resultData struct {
	Success  bool   `json:"success"`
	CanvasId string `json:"canvasId"`
	Error    string `json:"error,omitempty"`
}

func (h *Handler) HandleWsMessage(client *Client, messageBytes []byte) {
	var msg message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		logutils.Log.WithError(err).WithField("userId", client.user.Id).Debug("invalid websocket JSON")
		return
	}

	ctx, cancel := context.WithTimeout(client.ctx, requestTimeout)
	defer cancel()

	var resp responseMessage

	switch msg.Type {
	case "watch":
		var watchMsg watchMessage
		if err := json.Unmarshal(msg.Data, &watchMsg); err != nil {
			return
		}
		resp = responseMessage{Type: "watch_response", Data: h.handleWatch(ctx, client, watchMsg)}

	case "unwatch":
		var watchMsg watchMessage
		if err := json.Unmarshal(msg.Data, &watchMsg); err != nil {
			return
		}
		resp = responseMessage{Type: "unwatch_response", Data: h.handleUnwatch(client, watchMsg)}

	case "session":
		var sessionMsg sessionMessage
		if err := json.Unmarshal(msg.Data, &sessionMsg); err != nil {
			return
		}
		resp = responseMessage{Type: "session_response", Data: h.handleSession(ctx, client, sessionMsg)}

	default:
		logutils.Log.WithField("type", msg.Type).Debug("unknown websocket message type")
	}

	if resp.Type == "" {
		return
	}
	respBytes, err := json.Marshal(resp)
	if err != nil {
		logutils.Log.WithError(err).Error("marshal websocket response")
		return
	}
	client.reply(respBytes)
}

func (h *Handler) handleWatch(ctx context.Context, client *Client, watchMsg watchMessage) resultData {
	result := resultData{CanvasId: watchMsg.CanvasId}

	// Unknown and inaccessible canvases answer the same way.
	if !h.Service.CheckPermission(ctx, client.user.Id, watchMsg.CanvasId, models.PermissionView) {
		result.Error = service.ErrNotFound.Error()
		return result
	}

	done := make(chan bool, 1)
	select {
	case h.Hub.WatchCh <- watch{client: client, canvasId: watchMsg.CanvasId, done: done}:
	case <-ctx.Done():
		result.Error = "unavailable"
		return result
	}

	select {
	case result.Success = <-done:
	case <-ctx.Done():
	}
	if !result.Success {
		result.Error = "watch limit reached or subscription failed"
	}
	return result
}

func (h *Handler) handleUnwatch(client *Client, watchMsg watchMessage) resultData {
	select {
	case h.Hub.UnwatchCh <- watch{client: client, canvasId: watchMsg.CanvasId}:
	case <-client.ctx.Done():
	}
	return resultData{Success: true, CanvasId: watchMsg.CanvasId}
}

func (h *Handler) handleSession(ctx context.Context, client *Client, sessionMsg sessionMessage) resultData {
	result := resultData{CanvasId: sessionMsg.CanvasId}

	err := h.Service.UpdateSession(ctx, client.user, sessionMsg.CanvasId, sessionMsg.SessionData)
	switch {
	case err == nil:
		result.Success = true
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrPermissionDenied), service.IsValidationError(err):
		result.Error = err.Error()
	default:
		logutils.Log.WithError(err).WithFields(logutils.Fields{
			"userId":   client.user.Id,
			"canvasId": sessionMsg.CanvasId,
		}).Error("session update failed")
		result.Error = "internal error"
	}
	return result
}
