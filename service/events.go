package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zlnvch/easel/cache"
	"github.com/zlnvch/easel/logutils"
)

const (
	EventCanvasSaved   = "canvas_saved"
	EventCanvasDeleted = "canvas_deleted"
	EventAssetsChanged = "assets_changed"
	EventAccessRevoked = "access_revoked"
)

// CanvasEvent is published on the canvas channel and forwarded verbatim to
// websocket watchers.
type CanvasEvent struct {
	Type string          `json:"type"`
	Data CanvasEventData `json:"data"`
}

type CanvasEventData struct {
	CanvasId string `json:"canvasId"`
	Version  int    `json:"version,omitempty"`
	// UserId is the actor, or the grantee for access_revoked.
	UserId string `json:"userId,omitempty"`
}

const publishTimeout = 5 * time.Second

// publishCanvasEvent is fire-and-forget.
func (s *Service) publishCanvasEvent(eventType string, data CanvasEventData) {
	if s.Cache == nil {
		return
	}

	message, err := json.Marshal(CanvasEvent{Type: eventType, Data: data})
	if err != nil {
		logutils.Log.WithError(err).Error("marshal canvas event")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.Cache.Publish(ctx, cache.CanvasChannel(data.CanvasId), message); err != nil {
			logutils.Log.WithError(err).WithFields(logutils.Fields{
				"canvasId": data.CanvasId,
				"type":     eventType,
			}).Warn("publish canvas event failed")
		}
	}()
}
