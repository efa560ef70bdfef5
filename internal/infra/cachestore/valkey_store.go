package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/airwise/internal/domain/cache"
)

const scanBatch = 200

type valkeyEntry struct {
	Value    []byte    `json:"v"`
	Category string    `json:"c"`
	StoredAt time.Time `json:"s"`
	TTL      int64     `json:"t"`
}

// ValkeyStore persists cache entries in a Valkey-compatible database. Values
// are JSON envelopes compressed with zstd; Valkey's own expiry removes them.
type ValkeyStore struct {
	client  valkey.Client
	prefix  string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewValkeyStore constructs a store backed by Valkey.
func NewValkeyStore(client valkey.Client, prefix string) (*ValkeyStore, error) {
	if prefix == "" {
		prefix = "airwise:cache"
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &ValkeyStore{client: client, prefix: prefix, encoder: enc, decoder: dec}, nil
}

func (s *ValkeyStore) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(s.entryKey(key)).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, err
	}
	plain, err := s.decoder.DecodeAll(raw, nil)
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("decompress %s: %w", key, err)
	}
	var env valkeyEntry
	if err := json.Unmarshal(plain, &env); err != nil {
		return cache.Entry{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return cache.Entry{
		Key:      key,
		Value:    env.Value,
		Category: env.Category,
		StoredAt: env.StoredAt,
		TTL:      time.Duration(env.TTL),
	}, true, nil
}

func (s *ValkeyStore) Set(ctx context.Context, entry cache.Entry) error {
	payload, err := json.Marshal(valkeyEntry{
		Value:    entry.Value,
		Category: entry.Category,
		StoredAt: entry.StoredAt,
		TTL:      int64(entry.TTL),
	})
	if err != nil {
		return err
	}
	compressed := s.encoder.EncodeAll(payload, nil)
	ttl := entry.TTL
	if ttl < time.Second {
		ttl = time.Second
	}
	cmd := s.client.B().Set().Key(s.entryKey(entry.Key)).Value(valkey.BinaryString(compressed)).Ex(ttl).Build()
	return s.client.Do(ctx, cmd).Error()
}

func (s *ValkeyStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.entryKey(k)
	}
	return s.client.Do(ctx, s.client.B().Del().Key(full...).Build()).Error()
}

// Keys walks the keyspace with SCAN so large caches do not block the server.
func (s *ValkeyStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	match := s.entryKey(pattern)
	for {
		entry, err := s.client.Do(ctx, s.client.B().Scan().Cursor(cursor).Match(match).Count(scanBatch).Build()).AsScanEntry()
		if err != nil {
			return nil, err
		}
		for _, k := range entry.Elements {
			out = append(out, strings.TrimPrefix(k, s.prefix+":"))
		}
		cursor = entry.Cursor
		if cursor == 0 {
			return out, nil
		}
	}
}

// Purge is a no-op: Valkey expires keys on its own.
func (s *ValkeyStore) Purge(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *ValkeyStore) entryKey(key string) string {
	return s.prefix + ":" + key
}

var _ cache.Store = (*ValkeyStore)(nil)
