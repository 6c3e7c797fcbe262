// Package storage mirrors recorded proposals into a NATS JetStream KV bucket so
// other services can look them up without reading the Proposals tree.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/proposals/proposal"
	"github.com/c360studio/proposals/recorder"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucket is the KV bucket used when none is configured.
const DefaultBucket = "PROPOSALS"

var validKey = regexp.MustCompile(`^[-/_=.a-zA-Z0-9]+$`)

// Entry is one indexed proposal.
type Entry struct {
	Key        string           `json:"key"`
	Term       string           `json:"term"`
	Version    string           `json:"version"`
	Dir        string           `json:"dir"`
	RunID      string           `json:"run_id"`
	RecordedAt time.Time        `json:"recorded_at"`
	Record     *proposal.Record `json:"record"`
}

// Bucket is the subset of a KV bucket the index needs.
type Bucket interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Keys(ctx context.Context) ([]string, error)
}

// Index stores proposal entries keyed by "<term>.<version>".
type Index struct {
	bucket Bucket
}

// NewIndex creates an Index over an existing bucket.
func NewIndex(bucket Bucket) *Index {
	return &Index{bucket: bucket}
}

// OpenIndex opens the named JetStream KV bucket, creating it when missing.
func OpenIndex(ctx context.Context, js jetstream.JetStream, name string) (*Index, error) {
	if name == "" {
		name = DefaultBucket
	}
	kv, err := getOrCreateBucket(ctx, js, name)
	if err != nil {
		return nil, fmt.Errorf("open index bucket: %w", err)
	}
	return NewIndex(&jetStreamBucket{kv: kv}), nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Recorded proposals (%s)", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// Name identifies the index as a recorder side channel.
func (i *Index) Name() string {
	return "kv-index"
}

// Recorded stores the record written by the recorder.
func (i *Index) Recorded(ctx context.Context, rec *proposal.Record, res *recorder.Result) error {
	return i.Put(ctx, &Entry{
		Key:        res.Location.Key(),
		Term:       res.Location.Term(),
		Version:    res.Location.Version,
		Dir:        res.Dir,
		RunID:      res.RunID,
		RecordedAt: res.RecordedAt,
		Record:     rec,
	})
}

// Put stores an entry under its key, replacing any earlier entry.
func (i *Index) Put(ctx context.Context, e *Entry) error {
	if !validKey.MatchString(e.Key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, e.Key)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := i.bucket.Put(ctx, e.Key, data); err != nil {
		return fmt.Errorf("store entry: %w", err)
	}
	return nil
}

// Get retrieves the entry stored under key.
func (i *Index) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := i.bucket.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal entry: %w", err)
	}
	return &e, nil
}

// List returns all entries ordered by key. Entries that fail to load are skipped.
func (i *Index) List(ctx context.Context) ([]*Entry, error) {
	keys, err := i.bucket.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list index keys: %w", err)
	}
	sort.Strings(keys)

	entries := make([]*Entry, 0, len(keys))
	for _, key := range keys {
		e, err := i.Get(ctx, key)
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// jetStreamBucket adapts a JetStream KeyValue to Bucket.
type jetStreamBucket struct {
	kv jetstream.KeyValue
}

func (b *jetStreamBucket) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.kv.Put(ctx, key, value)
	return err
}

func (b *jetStreamBucket) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry.Value(), nil
}

func (b *jetStreamBucket) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}
	return keys, nil
}
