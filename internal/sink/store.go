package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ashureev/greenwatch-runner/internal/store"
)

// StoreSink keeps a local mirror of records in a store.RecordRepository.
type StoreSink struct {
	repo store.RecordRepository
}

// NewStoreSink wraps repo. Close closes repo.
func NewStoreSink(repo store.RecordRepository) *StoreSink {
	return &StoreSink{repo: repo}
}

// Upsert writes the record keyed by its "_id".
func (s *StoreSink) Upsert(ctx context.Context, collection string, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	createdAt := record.Timestamp()
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return s.repo.UpsertRecord(ctx, &store.Record{
		ID:         record.ID(),
		Collection: collection,
		SessionID:  record.SessionID(),
		Payload:    payload,
		CreatedAt:  createdAt,
	})
}

// Close closes the underlying repository.
func (s *StoreSink) Close() error {
	return s.repo.Close()
}

var _ Sink = (*StoreSink)(nil)
