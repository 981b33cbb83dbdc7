package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zlnvch/easel/blob"
	"github.com/zlnvch/easel/logutils"
	"github.com/zlnvch/easel/metrics"
	"github.com/zlnvch/easel/mq"
)

// DeleteBlobsMessage asks the cleaner to remove objects that no longer have
// an asset row, typically after a canvas delete.
type DeleteBlobsMessage struct {
	CanvasId    string   `json:"canvasId"`
	StorageKeys []string `json:"storageKeys"`
}

type BlobCleaner struct {
	queue   mq.MessageQueue
	blobs   blob.BlobStore
	metrics metrics.Recorder
}

func NewBlobCleaner(queue mq.MessageQueue, blobs blob.BlobStore, recorder metrics.Recorder) *BlobCleaner {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &BlobCleaner{
		queue:   queue,
		blobs:   blobs,
		metrics: recorder,
	}
}

// Allow up to 2 minutes to delete every key of one message
const blobCleanupVisibilityTimeout = 120

const receiveErrorBackoff = 5 * time.Second

func (c *BlobCleaner) Run(shutdownCtx context.Context) {
	for {
		msgs, err := c.queue.Receive(shutdownCtx, 10, blobCleanupVisibilityTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			logutils.Log.WithError(err).Error("blob cleaner receive failed")
			select {
			case <-shutdownCtx.Done():
				return
			case <-time.After(receiveErrorBackoff):
			}
			continue
		}

		for _, msg := range msgs {
			if err := c.handleMessage(msg); err != nil {
				logutils.Log.WithError(err).WithField("messageId", msg.Id).Warn("blob cleanup will be retried")
			}
		}

		if shutdownCtx.Err() != nil {
			return
		}
	}
}

// handleMessage deletes the message only once every key is gone, so SQS
// redelivers partially processed messages.
func (c *BlobCleaner) handleMessage(msg mq.Message) error {
	var deleteMsg DeleteBlobsMessage
	if err := json.Unmarshal([]byte(msg.Body), &deleteMsg); err != nil {
		logutils.Log.WithError(err).WithField("messageId", msg.Id).Error("dropping malformed blob cleanup message")
		return c.queue.Delete(context.Background(), msg)
	}

	// timeout should be a little less than queue visibility timeout
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(blobCleanupVisibilityTimeout-1)*time.Second)
	defer cancel()

	failed := 0
	for _, key := range deleteMsg.StorageKeys {
		if err := c.blobs.Delete(ctx, key); err != nil {
			failed++
			c.metrics.RecordBlobDeleteFailure()
			logutils.Log.WithError(err).WithFields(logutils.Fields{
				"canvasId":   deleteMsg.CanvasId,
				"storageKey": key,
			}).Warn("blob delete failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d blob deletes failed for canvas %s", failed, len(deleteMsg.StorageKeys), deleteMsg.CanvasId)
	}

	if err := c.queue.Delete(context.Background(), msg); err != nil {
		return fmt.Errorf("delete queue message: %w", err)
	}
	return nil
}
