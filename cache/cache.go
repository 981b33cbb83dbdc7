package cache

import "context"

// EaselCache is the fanout used to push canvas events to every API instance.
type EaselCache interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func(message []byte)) error
	Close() error
}

func CanvasChannel(canvasId string) string {
	return "canvas:" + canvasId
}
