package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/COG-GTM/fireflies-agent/internal/constants"
	"github.com/COG-GTM/fireflies-agent/pkg/models"
)

// RecordStore holds DeliveryRecords for the dedup window. Claim is the
// atomic first-writer check that makes duplicate triggers no-ops.
type RecordStore interface {
	// Claim atomically creates an in-flight record for eventID. Returns
	// false when a record already exists within the dedup window.
	Claim(ctx context.Context, eventID string) (bool, error)
	// MarkDelivered and MarkFailed settle the record's terminal state.
	MarkDelivered(ctx context.Context, eventID string, attempts int) error
	MarkFailed(ctx context.Context, eventID string, attempts int) error
	Get(ctx context.Context, eventID string) (*models.DeliveryRecord, bool, error)
	Size(ctx context.Context) (int, error)
}

// RedisRecordStore backs the dedup window with Redis SetNX + TTL, so the
// window survives process restarts and is shared across replicas.
type RedisRecordStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRecordStore(client *redis.Client, ttl time.Duration) *RedisRecordStore {
	return &RedisRecordStore{client: client, ttl: ttl}
}

func (s *RedisRecordStore) Claim(ctx context.Context, eventID string) (bool, error) {
	rec := models.DeliveryRecord{
		EventID:   eventID,
		Status:    models.StatusInFlight,
		UpdatedAt: time.Now(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}

	claimed, err := s.client.SetNX(ctx, s.key(eventID), data, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	return claimed, nil
}

func (s *RedisRecordStore) MarkDelivered(ctx context.Context, eventID string, attempts int) error {
	return s.set(ctx, eventID, models.StatusDelivered, attempts)
}

func (s *RedisRecordStore) MarkFailed(ctx context.Context, eventID string, attempts int) error {
	return s.set(ctx, eventID, models.StatusFailed, attempts)
}

func (s *RedisRecordStore) set(ctx context.Context, eventID string, status models.DeliveryStatus, attempts int) error {
	rec := models.DeliveryRecord{
		EventID:   eventID,
		Status:    status,
		Attempts:  attempts,
		UpdatedAt: time.Now(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	// The window restarts at settlement; a webhook replay arriving a full
	// TTL after completion is treated as a fresh event.
	if err := s.client.Set(ctx, s.key(eventID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis Set failed: %w", err)
	}
	return nil
}

func (s *RedisRecordStore) Get(ctx context.Context, eventID string) (*models.DeliveryRecord, bool, error) {
	data, err := s.client.Get(ctx, s.key(eventID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis Get failed: %w", err)
	}

	var rec models.DeliveryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (s *RedisRecordStore) Size(ctx context.Context) (int, error) {
	iter := s.client.Scan(ctx, 0, constants.CacheKeyPrefixDelivery+"*", 0).Iterator()
	count := 0
	for iter.Next(ctx) {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan failed: %w", err)
	}
	return count, nil
}

func (s *RedisRecordStore) key(eventID string) string {
	return constants.CacheKeyPrefixDelivery + eventID
}

// MemoryRecordStore is the single-process default: bounded size,
// time-evicted, no external dependency. Records expire after the dedup
// window; when the table is full the stalest record is dropped first.
type MemoryRecordStore struct {
	mu         sync.Mutex
	records    map[string]*memoryRecord
	ttl        time.Duration
	maxRecords int
	stop       chan struct{}
	stopOnce   sync.Once
}

type memoryRecord struct {
	rec       models.DeliveryRecord
	expiresAt time.Time
}

func NewMemoryRecordStore(ttl time.Duration, maxRecords int) *MemoryRecordStore {
	if ttl <= 0 {
		ttl = constants.DefaultDedupTTL
	}
	if maxRecords <= 0 {
		maxRecords = constants.DefaultMaxDedupRecords
	}

	s := &MemoryRecordStore{
		records:    make(map[string]*memoryRecord),
		ttl:        ttl,
		maxRecords: maxRecords,
		stop:       make(chan struct{}),
	}

	go s.janitor()

	return s
}

func (s *MemoryRecordStore) Claim(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if entry, ok := s.records[eventID]; ok && now.Before(entry.expiresAt) {
		return false, nil
	}

	s.evictLocked(now)

	s.records[eventID] = &memoryRecord{
		rec: models.DeliveryRecord{
			EventID:   eventID,
			Status:    models.StatusInFlight,
			UpdatedAt: now,
		},
		expiresAt: now.Add(s.ttl),
	}
	return true, nil
}

func (s *MemoryRecordStore) MarkDelivered(_ context.Context, eventID string, attempts int) error {
	return s.set(eventID, models.StatusDelivered, attempts)
}

func (s *MemoryRecordStore) MarkFailed(_ context.Context, eventID string, attempts int) error {
	return s.set(eventID, models.StatusFailed, attempts)
}

func (s *MemoryRecordStore) set(eventID string, status models.DeliveryStatus, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.records[eventID] = &memoryRecord{
		rec: models.DeliveryRecord{
			EventID:   eventID,
			Status:    status,
			Attempts:  attempts,
			UpdatedAt: now,
		},
		expiresAt: now.Add(s.ttl),
	}
	return nil
}

func (s *MemoryRecordStore) Get(_ context.Context, eventID string) (*models.DeliveryRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.records[eventID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}

	rec := entry.rec
	return &rec, true, nil
}

func (s *MemoryRecordStore) Size(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *MemoryRecordStore) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// evictLocked makes room for one record. Callers hold s.mu.
func (s *MemoryRecordStore) evictLocked(now time.Time) {
	if len(s.records) < s.maxRecords {
		return
	}

	for id, entry := range s.records {
		if now.After(entry.expiresAt) {
			delete(s.records, id)
		}
	}

	if len(s.records) < s.maxRecords {
		return
	}

	var oldestID string
	var oldest time.Time
	for id, entry := range s.records {
		if oldestID == "" || entry.rec.UpdatedAt.Before(oldest) {
			oldestID = id
			oldest = entry.rec.UpdatedAt
		}
	}
	if oldestID != "" {
		delete(s.records, oldestID)
	}
}

func (s *MemoryRecordStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for id, entry := range s.records {
				if now.After(entry.expiresAt) {
					delete(s.records, id)
				}
			}
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}
