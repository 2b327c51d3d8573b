package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"taskboard/domain"
)

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// HistoryMessage is the queue payload of one appended history entry.
type HistoryMessage struct {
	OwnerID string              `json:"ownerId"`
	Entry   domain.HistoryEntry `json:"entry"`
}

// Feed publishes appended history entries to a storage queue for
// downstream consumers.
type Feed struct {
	queue queueClient
}

func NewFeed(q queueClient) *Feed {
	if q == nil {
		panic("storage.NewFeed: queue is nil")
	}
	return &Feed{queue: q}
}

// Publish enqueues one message per entry. It attempts every entry and joins
// the failures.
func (f *Feed) Publish(ctx context.Context, ownerID string, entries []domain.HistoryEntry) error {
	var errs []error
	for _, e := range entries {
		data, err := sonic.MarshalString(HistoryMessage{OwnerID: ownerID, Entry: e})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := f.queue.EnqueueMessage(ctx, data, nil); err != nil {
			errs = append(errs, fmt.Errorf("enqueue history %s: %w", e.ID, err))
		}
	}
	return errors.Join(errs...)
}
