package services

import (
	"context"

	"github.com/notecore/notecore/internal/model"
	"github.com/notecore/notecore/internal/store"
)

// SyncService pages the event log for downstream consumers.
type SyncService struct {
	store        store.Store
	maxBatchSize int
}

func NewSyncService(st store.Store, maxBatchSize int) *SyncService {
	return &SyncService{store: st, maxBatchSize: maxBatchSize}
}

// ListSyncEvents returns events with cursor strictly greater than
// afterCursor, in cursor order, capped at the configured batch size.
// NextCursor is the last returned cursor, or afterCursor when the page
// is empty, so consumers can poll with it unconditionally.
func (s *SyncService) ListSyncEvents(ctx context.Context, afterCursor int64, limit int) (*model.SyncBatch, error) {
	if limit <= 0 || limit > s.maxBatchSize {
		limit = s.maxBatchSize
	}
	events, err := s.store.Events().ListAfter(ctx, afterCursor, limit)
	if err != nil {
		return nil, err
	}
	next := afterCursor
	if len(events) > 0 {
		next = events[len(events)-1].Cursor
	}
	if events == nil {
		events = []*model.MemoryEvent{}
	}
	return &model.SyncBatch{Events: events, NextCursor: next}, nil
}
