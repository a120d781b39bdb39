package execution

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ErrRecordNotFound is returned when no record exists for an execution id.
var ErrRecordNotFound = errors.New("execution record not found")

// RecordStore retains execution records for audit. Retention is best-effort
// side-channel state; the in-flight execution itself never reads it back.
type RecordStore interface {
	SaveRecord(ctx context.Context, record *Record) error
	GetRecord(ctx context.Context, executionID string) (*Record, error)
}

// MemoryStore keeps records in process memory. Default store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// SaveRecord implements RecordStore.
func (s *MemoryStore) SaveRecord(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	cp.Nodes = append([]NodeProgress(nil), record.Nodes...)
	s.records[record.ExecutionID] = &cp
	return nil
}

// GetRecord implements RecordStore.
func (s *MemoryStore) GetRecord(_ context.Context, executionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[executionID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *record
	cp.Nodes = append([]NodeProgress(nil), record.Nodes...)
	return &cp, nil
}

// RedisStore retains execution records in Redis with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed record store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// SaveRecord implements RecordStore.
func (s *RedisStore) SaveRecord(ctx context.Context, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "failed to marshal execution record")
	}

	key := "mpc:execution:" + record.ExecutionID
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to save execution record")
	}

	return nil
}

// GetRecord implements RecordStore.
func (s *RedisStore) GetRecord(ctx context.Context, executionID string) (*Record, error) {
	key := "mpc:execution:" + executionID
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrRecordNotFound
		}
		return nil, errors.Wrap(err, "failed to get execution record")
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal execution record")
	}

	return &record, nil
}
