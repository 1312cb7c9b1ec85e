// Package identity verifies opaque login credentials against an external
// identity provider. It only returns facts about the subject; user records
// and sessions are handled elsewhere.
package identity

import (
	"context"
	"errors"
)

var ErrInvalidCredential = errors.New("identity: invalid credential")

// Identity is the normalized result of a successful verification.
type Identity struct {
	Subject     string
	DisplayName string
	Email       string
}

type Verifier interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, ErrInvalidCredential
	}
	var errs []error
	for _, v := range c {
		id, err := v.Verify(ctx, credential)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrInvalidCredential) {
			errs = append(errs, err)
		}
	}
	// a provider that could not be reached is not a bad credential
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrInvalidCredential
}
