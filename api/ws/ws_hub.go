package ws

import (
	"context"
	"encoding/json"

	"github.com/zlnvch/easel/cache"
	"github.com/zlnvch/easel/logutils"
	"github.com/zlnvch/easel/metrics"
	"github.com/zlnvch/easel/service"
)

type watch struct {
	client   *Client
	canvasId string
	// done receives whether the watch was registered.
	done chan bool
}

type canvasMessage struct {
	canvasId string
	payload  []byte
}

// Hub owns every map below; they are only touched from Run.
type Hub struct {
	easelCache               cache.EaselCache
	metrics                  metrics.Recorder
	OpenCh                   chan *Client
	CloseCh                  chan *Client
	WatchCh                  chan watch
	UnwatchCh                chan watch
	canvasMessageCh          chan canvasMessage
	userToClients            map[string]map[*Client]struct{}
	canvasToClients          map[string]map[*Client]struct{}
	canvasToSubscriberCancel map[string]context.CancelFunc
}

func NewHub(easelCache cache.EaselCache, recorder metrics.Recorder) *Hub {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Hub{
		easelCache:               easelCache,
		metrics:                  recorder,
		OpenCh:                   make(chan *Client, 256),
		CloseCh:                  make(chan *Client, 256),
		WatchCh:                  make(chan watch, 1024),
		UnwatchCh:                make(chan watch, 1024),
		canvasMessageCh:          make(chan canvasMessage, 1024),
		userToClients:            make(map[string]map[*Client]struct{}),
		canvasToClients:          make(map[string]map[*Client]struct{}),
		canvasToSubscriberCancel: make(map[string]context.CancelFunc),
	}
}

const (
	maxConnectionsPerUser   = 5
	maxWatchesPerConnection = 50
)

func (h *Hub) Run(shutdownCtx context.Context) {
	defer func() {
		for canvasId, cancel := range h.canvasToSubscriberCancel {
			cancel()
			delete(h.canvasToSubscriberCancel, canvasId)
		}
	}()

	for {
		select {
		case client := <-h.OpenCh:
			h.register(client)

		case client := <-h.CloseCh:
			h.unregister(client)

		case w := <-h.WatchCh:
			w.done <- h.addWatch(shutdownCtx, w.client, w.canvasId)

		case w := <-h.UnwatchCh:
			h.removeWatch(w.client, w.canvasId)
			if w.done != nil {
				w.done <- true
			}

		case msg := <-h.canvasMessageCh:
			h.dispatch(msg)

		case <-shutdownCtx.Done():
			return
		}
	}
}

func (h *Hub) register(client *Client) {
	clients, ok := h.userToClients[client.user.Id]
	if !ok {
		clients = make(map[*Client]struct{})
		h.userToClients[client.user.Id] = clients
	}

	if len(clients) >= maxConnectionsPerUser {
		logutils.Log.WithFields(logutils.Fields{
			"userId": client.user.Id,
			"max":    maxConnectionsPerUser,
		}).Warn("user reached max websocket connections")
		client.cancel()
		return
	}

	clients[client] = struct{}{}
	client.registered = true
	h.metrics.RecordWSConnection(1)
}

func (h *Hub) unregister(client *Client) {
	for canvasId := range client.watching {
		h.removeWatch(client, canvasId)
	}
	client.cancel()

	if !client.registered {
		return
	}
	client.registered = false
	h.metrics.RecordWSConnection(-1)

	delete(h.userToClients[client.user.Id], client)
	if len(h.userToClients[client.user.Id]) == 0 {
		delete(h.userToClients, client.user.Id)
	}
}

func (h *Hub) addWatch(shutdownCtx context.Context, client *Client, canvasId string) bool {
	if client.ctx.Err() != nil {
		return false
	}
	if _, ok := client.watching[canvasId]; ok {
		return true
	}
	if len(client.watching) >= maxWatchesPerConnection {
		logutils.Log.WithFields(logutils.Fields{
			"userId": client.user.Id,
			"max":    maxWatchesPerConnection,
		}).Warn("connection reached max watched canvases")
		return false
	}

	if h.canvasToClients[canvasId] == nil {
		ctx, cancel := context.WithCancel(shutdownCtx)
		channel := cache.CanvasChannel(canvasId)

		err := h.easelCache.Subscribe(ctx, channel, func(payload []byte) {
			select {
			case h.canvasMessageCh <- canvasMessage{canvasId: canvasId, payload: payload}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			cancel()
			logutils.Log.WithError(err).WithField("channel", channel).Error("failed to subscribe to canvas channel")
			return false
		}

		h.canvasToClients[canvasId] = make(map[*Client]struct{})
		h.canvasToSubscriberCancel[canvasId] = cancel
	}

	h.canvasToClients[canvasId][client] = struct{}{}
	client.watching[canvasId] = struct{}{}
	return true
}

func (h *Hub) removeWatch(client *Client, canvasId string) {
	delete(h.canvasToClients[canvasId], client)
	delete(client.watching, canvasId)
	if len(h.canvasToClients[canvasId]) == 0 {
		if cancel, ok := h.canvasToSubscriberCancel[canvasId]; ok {
			cancel()
			delete(h.canvasToSubscriberCancel, canvasId)
		}
		delete(h.canvasToClients, canvasId)
	}
}

// dispatch forwards a canvas event to its watchers. Revocations and deletes
// also end the affected watches so no further events leak.
func (h *Hub) dispatch(msg canvasMessage) {
	var event service.CanvasEvent
	if err := json.Unmarshal(msg.payload, &event); err != nil {
		logutils.Log.WithError(err).WithField("canvasId", msg.canvasId).Warn("invalid canvas event")
		return
	}

	for client := range h.canvasToClients[msg.canvasId] {
		if event.Type == service.EventAccessRevoked && client.user.Id != event.Data.UserId {
			continue
		}
		if !client.trySend(msg.payload) {
			logutils.Log.WithField("userId", client.user.Id).Warn("dropping slow websocket client")
			h.unregister(client)
			continue
		}

		switch event.Type {
		case service.EventAccessRevoked, service.EventCanvasDeleted:
			h.removeWatch(client, msg.canvasId)
		}
	}
}
