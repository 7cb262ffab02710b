package dedup

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a redis-backed fast path for duplicate detection plus the
// pending-payment records the recovery watcher scans. It is advisory:
// the ledger's natural key is authoritative.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Seen marks the key and reports whether it was already marked.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, "reconciled:"+key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// PendingPayment is recorded when a checkout hands off to the provider,
// so the watcher can recover a flow abandoned mid-transit.
type PendingPayment struct {
	OrderRef  string    `json:"order_ref"`
	StartedAt time.Time `json:"started_at"`
}

func (s *Store) MarkPending(ctx context.Context, orderRef string) error {
	raw, err := json.Marshal(PendingPayment{OrderRef: orderRef, StartedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, "pending:"+orderRef, raw, s.ttl).Err()
}

func (s *Store) ClearPending(ctx context.Context, orderRef string) error {
	return s.rdb.Del(ctx, "pending:"+orderRef).Err()
}

func (s *Store) ListPending(ctx context.Context) ([]PendingPayment, error) {
	var pending []PendingPayment
	iter := s.rdb.Scan(ctx, 0, "pending:*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, err
		}
		var p PendingPayment
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		pending = append(pending, p)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return pending, nil
}
