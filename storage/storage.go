// Package storage provides the relay's key-value collaborator stores: the
// handle directory (chat handle → identity) and the mute list. The
// production implementations are backed by NATS JetStream KV buckets;
// in-memory implementations back tests and single-process development.
package storage

import (
	"context"

	"github.com/c360studio/teamrelay/directory"
)

// KV bucket names.
const (
	BucketHandles = "TEAMRELAY_HANDLES"
	BucketMuted   = "TEAMRELAY_MUTED"
)

// HandleDirectory maps lowercase-normalized chat handles to identities.
// Record is last-write-wins for a handle that moves to a new identity.
type HandleDirectory interface {
	Resolve(ctx context.Context, handle string) (directory.Identity, bool, error)
	Record(ctx context.Context, handle string, id directory.Identity) error
}

// MuteList tracks senders whose messages are rejected before any routing.
type MuteList interface {
	IsMuted(ctx context.Context, id directory.Identity) (bool, error)
	Mute(ctx context.Context, id directory.Identity) error
	Unmute(ctx context.Context, id directory.Identity) error
}
