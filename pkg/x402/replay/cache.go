// Package replay prevents a confirmed payment transaction from being
// redeemed more than once. Consumption must be first-writer-wins even under
// concurrent verification of the same signature.
package replay

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyUsed is returned by MarkUsed when another verification consumed
// the signature first.
var ErrAlreadyUsed = errors.New("replay: payment signature already used")

// Meta records what a consumed signature paid for.
type Meta struct {
	Recipient  string    `json:"recipient"`
	Amount     uint64    `json:"amount"`
	Payer      string    `json:"payer"`
	ConsumedAt time.Time `json:"consumedAt"`
}

// Cache tracks consumed payment signatures for a bounded window.
//
// MarkUsed is the single consumption point: exactly one concurrent caller
// for a given signature succeeds, every other gets ErrAlreadyUsed. IsUsed
// is advisory only and must never substitute for MarkUsed.
type Cache interface {
	IsUsed(ctx context.Context, signature string) (bool, error)
	MarkUsed(ctx context.Context, signature string, meta Meta) error
	Meta(ctx context.Context, signature string) (*Meta, error)
	Clear(ctx context.Context) error
	Close() error
}
