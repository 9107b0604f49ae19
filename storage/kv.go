package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/teamrelay/directory"
)

// KVHandles is a HandleDirectory backed by a JetStream KV bucket. Keys are
// lowercase handles; values are the decimal identity.
type KVHandles struct {
	bucket jetstream.KeyValue
}

// NewKVHandles opens (or creates) the handle bucket.
func NewKVHandles(ctx context.Context, js jetstream.JetStream) (*KVHandles, error) {
	bucket, err := getOrCreateBucket(ctx, js, BucketHandles, "chat handle to identity mapping")
	if err != nil {
		return nil, fmt.Errorf("open handle bucket: %w", err)
	}
	return &KVHandles{bucket: bucket}, nil
}

// Resolve looks up the identity recorded for handle.
func (h *KVHandles) Resolve(ctx context.Context, handle string) (directory.Identity, bool, error) {
	entry, err := h.bucket.Get(ctx, normalizeHandle(handle))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get handle: %w", err)
	}

	n, err := strconv.ParseInt(string(entry.Value()), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse handle value: %w", err)
	}
	return directory.Identity(n), true, nil
}

// Record stores or overwrites the identity for handle. Last write wins.
func (h *KVHandles) Record(ctx context.Context, handle string, id directory.Identity) error {
	key := normalizeHandle(handle)
	if key == "" {
		return fmt.Errorf("empty handle")
	}
	if _, err := h.bucket.Put(ctx, key, []byte(strconv.FormatInt(int64(id), 10))); err != nil {
		return fmt.Errorf("put handle: %w", err)
	}
	return nil
}

func normalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// KVMutes is a MuteList backed by a JetStream KV bucket. Presence of the
// decimal identity key means muted.
type KVMutes struct {
	bucket jetstream.KeyValue
}

// NewKVMutes opens (or creates) the mute bucket.
func NewKVMutes(ctx context.Context, js jetstream.JetStream) (*KVMutes, error) {
	bucket, err := getOrCreateBucket(ctx, js, BucketMuted, "muted sender identities")
	if err != nil {
		return nil, fmt.Errorf("open mute bucket: %w", err)
	}
	return &KVMutes{bucket: bucket}, nil
}

// IsMuted reports whether id is muted.
func (m *KVMutes) IsMuted(ctx context.Context, id directory.Identity) (bool, error) {
	_, err := m.bucket.Get(ctx, muteKey(id))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get mute entry: %w", err)
	}
	return true, nil
}

// Mute marks id as muted. Muting an already-muted identity is a no-op.
func (m *KVMutes) Mute(ctx context.Context, id directory.Identity) error {
	if _, err := m.bucket.Put(ctx, muteKey(id), []byte("1")); err != nil {
		return fmt.Errorf("put mute entry: %w", err)
	}
	return nil
}

// Unmute clears id's mute. Unmuting an unmuted identity is a no-op.
func (m *KVMutes) Unmute(ctx context.Context, id directory.Identity) error {
	err := m.bucket.Delete(ctx, muteKey(id))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete mute entry: %w", err)
	}
	return nil
}

func muteKey(id directory.Identity) string {
	return strconv.FormatInt(int64(id), 10)
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name, description string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: description,
		History:     5,
	})
}
