package mq

import "context"

type MessageQueue interface {
	Send(ctx context.Context, body string) error
	// Receive long-polls for up to maxMessages. An empty slice means the poll
	// timed out without messages.
	Receive(ctx context.Context, maxMessages int32, visibilityTimeout int32) ([]Message, error)
	Delete(ctx context.Context, msg Message) error
}

type Message struct {
	Id            string
	ReceiptHandle string
	Body          string
	ReceiveCount  int
}
