/*
Package redis provides a Redis-backed moderation.Store.

The whole snapshot is stored as one JSON document under a single key, in
the same document shape the panel database always used. A SET of one key
is atomic, so a reader never sees half a snapshot.

USAGE:
  client, err := redis.Connect(ctx, "redis://localhost:6379/0", log)
  st := redis.New(client, "moderation:actions")
  ledger := moderation.NewLedger(st)
*/
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	goredis "github.com/redis/go-redis/v9"
	"github.com/warp/moderation-engine/moderation"
	"go.uber.org/zap"
)

// DefaultKey holds the snapshot when no key is configured.
const DefaultKey = "moderation:actions"

// Connect parses url, opens a client and checks it with PING.
func Connect(ctx context.Context, url string, log *zap.Logger) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	log.Info("redis connected", zap.String("addr", opts.Addr))
	return client, nil
}

// Store implements moderation.Store on a single Redis key.
type Store struct {
	client *goredis.Client
	key    string
}

func New(client *goredis.Client, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key}
}

// Load returns the stored snapshot. A missing key is an empty ledger.
func (s *Store) Load(ctx context.Context) ([]moderation.Record, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return []moderation.Record{}, nil
	}
	if err != nil {
		return nil, classify(err)
	}

	var records []moderation.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.key, err)
	}
	if records == nil {
		records = []moderation.Record{}
	}
	return records, nil
}

// Save overwrites the snapshot key.
func (s *Store) Save(ctx context.Context, records []moderation.Record) error {
	if records == nil {
		records = []moderation.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return classify(s.client.Set(ctx, s.key, data, 0).Err())
}

func (s *Store) Ping(ctx context.Context) error {
	return classify(s.client.Ping(ctx).Err())
}

// classify marks connection-level failures as ErrStoreUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, goredis.ErrClosed) || errors.As(err, &netErr) {
		return fmt.Errorf("redis: %w: %w", moderation.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("redis: %w", err)
}

var _ moderation.Store = (*Store)(nil)
