// Package kv provides the generic named-slot key/value store backing
// registry persistence. Slot names are stable contracts; values are opaque
// byte payloads (JSON in practice).
package kv

import (
	"context"

	"github.com/weftdb/weft/internal/fault"
)

// Store is a named-slot byte store.
// Get returns a NotFound fault for absent slots.
type Store interface {
	Get(ctx context.Context, slot string) ([]byte, error)
	Put(ctx context.Context, slot string, value []byte) error
	Delete(ctx context.Context, slot string) error
	Close() error
}

func notFound(slot string) error {
	return fault.Newf(fault.NotFound, "slot %q not found", slot)
}
