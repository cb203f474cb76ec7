// Package redis provides a Redis-backed implementation of the ledger
// interface so that relying parties running more than one process can share
// the outstanding-challenge store.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/opwatch/sessioncheck-go/ledger"
)

// Config for the Redis-backed ledger. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`

	// KeyPrefix for all ledger keys. ENV: SESSIONCHECK_LEDGER_PREFIX
	KeyPrefix string `env:"SESSIONCHECK_LEDGER_PREFIX,default=sessioncheck:ledger:"`

	// EntryTTL bounds how long an unconsumed challenge stays outstanding.
	// ENV: SESSIONCHECK_LEDGER_TTL
	EntryTTL time.Duration `env:"SESSIONCHECK_LEDGER_TTL,default=5m"`

	// Client optionally supplies a pre-built Redis client. When set,
	// RedisAddr is ignored and Close does not close the client.
	Client *redis.Client
}

// Ledger implements ledger.Ledger on top of Redis.
type Ledger struct {
	client    *redis.Client
	keyPrefix string
	entryTTL  time.Duration
	ownClient bool
}

var _ ledger.Ledger = (*Ledger)(nil)

// New creates a Redis-backed ledger and verifies connectivity.
func New(cfg Config) (*Ledger, error) {
	client := cfg.Client
	own := false
	if client == nil {
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		client = redis.NewClient(&redis.Options{Addr: addr})
		own = true
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "sessioncheck:ledger:"
	}
	ttl := cfg.EntryTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Ledger{client: client, keyPrefix: prefix, entryTTL: ttl, ownClient: own}, nil
}

// NewFromEnv builds a ledger using envdecode to populate Config.
func NewFromEnv() (*Ledger, error) {
	var cfg Config
	// Defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

func (l *Ledger) key(checkID string) string { return l.keyPrefix + checkID }

// Put records the outstanding entry for checkID, replacing any prior entry.
func (l *Ledger) Put(ctx context.Context, checkID string, e ledger.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	if err := l.client.Set(ctx, l.key(checkID), data, l.entryTTL).Err(); err != nil {
		return fmt.Errorf("set ledger entry: %w", err)
	}
	return nil
}

// Take atomically returns and invalidates the outstanding entry for checkID.
func (l *Ledger) Take(ctx context.Context, checkID string) (*ledger.Entry, error) {
	res := l.client.GetDel(ctx, l.key(checkID))
	if err := res.Err(); err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("take ledger entry: %w", err)
	}
	var e ledger.Entry
	if err := json.Unmarshal([]byte(res.Val()), &e); err != nil {
		return nil, fmt.Errorf("unmarshal ledger entry: %w", err)
	}
	return &e, nil
}

// Delete drops any outstanding entry for checkID.
func (l *Ledger) Delete(ctx context.Context, checkID string) error {
	if err := l.client.Del(ctx, l.key(checkID)).Err(); err != nil {
		return fmt.Errorf("delete ledger entry: %w", err)
	}
	return nil
}

// Close closes the Redis client if this ledger created it.
func (l *Ledger) Close() error {
	if !l.ownClient {
		return nil
	}
	return l.client.Close()
}
