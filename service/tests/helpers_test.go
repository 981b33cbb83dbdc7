package service_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	blobmocks "github.com/zlnvch/easel/blob/mocks"
	cachemocks "github.com/zlnvch/easel/cache/mocks"
	"github.com/zlnvch/easel/models"
	mqmocks "github.com/zlnvch/easel/mq/mocks"
	"github.com/zlnvch/easel/service"
	storemocks "github.com/zlnvch/easel/store/mocks"
)

const (
	ownerId  = "018f0000-0000-7000-8000-000000000001"
	editorId = "018f0000-0000-7000-8000-000000000002"
	viewerId = "018f0000-0000-7000-8000-000000000003"
	otherId  = "018f0000-0000-7000-8000-000000000004"
	canvasId = "018f0000-0000-7000-8000-0000000000c1"
	assetId  = "018f0000-0000-7000-8000-0000000000a1"
)

var (
	owner  = models.User{Id: ownerId, Email: "owner@example.com", Name: "Owner", Provider: "github", ProviderId: "1"}
	editor = models.User{Id: editorId, Email: "editor@example.com", Name: "Editor", Provider: "github", ProviderId: "2"}
	viewer = models.User{Id: viewerId, Email: "viewer@example.com", Name: "Viewer", Provider: "google", ProviderId: "3"}
	other  = models.User{Id: otherId, Email: "other@example.com", Name: "Other", Provider: "google", ProviderId: "4"}
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// setupService wires a Service to mocks. Events published on the cache are
// decoded onto the returned channel; the publish happens on a goroutine so
// tests read from it with waitForEvent.
func setupService(t *testing.T) (*service.Service, *storemocks.MockStore, *blobmocks.MockBlobStore, *mqmocks.MockMQ, chan service.CanvasEvent) {
	mockStore := new(storemocks.MockStore)
	mockBlobs := new(blobmocks.MockBlobStore)
	mockCache := new(cachemocks.MockCache)
	mockMQ := new(mqmocks.MockMQ)

	events := make(chan service.CanvasEvent, 16)
	mockCache.On("Publish", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		var event service.CanvasEvent
		if err := json.Unmarshal(args.Get(2).([]byte), &event); err == nil {
			events <- event
		}
	}).Return(nil).Maybe()

	svc, err := service.NewService(
		mockStore,
		mockBlobs,
		mockCache,
		mockMQ,
		nil,
		nil,
		nil,
		testSecret,
		service.DefaultOptions(),
	)
	require.NoError(t, err)

	return svc, mockStore, mockBlobs, mockMQ, events
}

// Helper that creates a channel and wraps a mock call to signal when it's called
func wrapMockWithSignal(call *mock.Call) chan struct{} {
	done := make(chan struct{})
	call.Run(func(args mock.Arguments) {
		close(done)
	})
	return done
}

func waitForEvent(t *testing.T, events chan service.CanvasEvent) service.CanvasEvent {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(time.Second):
		assert.Fail(t, "timed out waiting for canvas event")
		return service.CanvasEvent{}
	}
}

func assertNoEvent(t *testing.T, events chan service.CanvasEvent) {
	t.Helper()
	select {
	case event := <-events:
		assert.Failf(t, "unexpected canvas event", "%s", event.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func testCanvas() models.Canvas {
	return models.Canvas{
		Id:       canvasId,
		OwnerId:  ownerId,
		Name:     "A",
		Version:  1,
		IsPublic: false,
	}
}

// expectAccess stubs the permission lookup for userId. level NONE means the
// user holds no share.
func expectAccess(mockStore *storemocks.MockStore, canvas models.Canvas, userId string, level models.PermissionLevel) {
	var share *models.CanvasShare
	if level != models.PermissionNone {
		share = &models.CanvasShare{CanvasId: canvas.Id, GranteeUserId: userId, Level: level}
	}
	mockStore.On("GetCanvasAccess", mock.Anything, canvas.Id, userId).Return(canvas, share, nil)
}
