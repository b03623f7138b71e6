// Package auth turns a request credential into the caller's identity.
package auth

import (
	"context"
	"errors"
	"fmt"
)

var ErrUnauthorized = errors.New("unauthorized")

type Identity struct {
	UserID      string `json:"userId"`
	AccountType string `json:"accountType,omitempty"`
}

type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// Chain accepts a credential as soon as one verifier does.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, credential string) (Identity, error) {
	var last error
	for _, v := range c {
		id, err := v.Verify(ctx, credential)
		if err == nil {
			return id, nil
		}
		last = err
	}
	if last == nil {
		return Identity{}, fmt.Errorf("%w: no verifier configured", ErrUnauthorized)
	}
	return Identity{}, last
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
