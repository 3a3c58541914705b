package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
)

func TestInMemoryDeadLetterStore(t *testing.T) {
	store := NewInMemoryDeadLetterStore()
	ctx := context.Background()

	record := PoisonRecord{
		ID:         xid.New().String(),
		QueueName:  "message-queue",
		Body:       "{not json",
		Reason:     "invalid character 'n' looking for beginning of object key string",
		ReceivedAt: time.Now(),
	}

	assert.NoError(t, store.Capture(ctx, record))

	records := store.Records()
	assert.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
	assert.Equal(t, record.Body, records[0].Body)

	// Records returns a copy, mutating it must not affect the store
	records[0].Body = "mutated"
	assert.Equal(t, "{not json", store.Records()[0].Body)

	assert.NoError(t, store.Close())
	assert.Empty(t, store.Records())
}

func TestInMemoryDeadLetterStoreConcurrentCapture(t *testing.T) {
	store := NewInMemoryDeadLetterStore()
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = store.Capture(ctx, PoisonRecord{
				ID:         xid.New().String(),
				QueueName:  "message-queue",
				Body:       "{broken",
				ReceivedAt: time.Now(),
			})
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Len(t, store.Records(), 10)
}
