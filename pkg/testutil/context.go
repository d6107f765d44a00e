package testutil

import (
	"context"

	id "custodia/pkg/domain"
	"custodia/pkg/requestcontext"
)

// Address returns the deterministic address of a named test identity, so
// tests can refer to "alice" without minting keys.
func Address(name string) id.Address {
	return id.DeriveAddress("test-user", name)
}

// CallerContext is a background context authenticated as name.
func CallerContext(name string) context.Context {
	return requestcontext.WithCaller(context.Background(), Address(name))
}
