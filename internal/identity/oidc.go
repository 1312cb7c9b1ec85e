package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog/log"
)

const GoogleIssuer = "https://accounts.google.com"

// OIDCVerifier checks ID tokens issued to clientID by an OpenID Connect provider.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDC discovers the provider configuration; it performs network I/O.
// ctx also bounds background key refreshes, so it should live as long as
// the verifier.
func NewOIDC(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	if issuer == "" || clientID == "" {
		return nil, errors.New("identity: oidc issuer and client id are required")
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("identity: init oidc provider %s: %w", issuer, err)
	}
	var meta struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil || meta.JWKSURL == "" {
		return nil, fmt.Errorf("identity: oidc provider %s has no jwks_uri: %v", issuer, err)
	}
	keys := &providerKeys{KeySet: oidc.NewRemoteKeySet(ctx, meta.JWKSURL)}
	return newOIDCVerifier(issuer, clientID, keys), nil
}

func newOIDCVerifier(issuer, clientID string, keys oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: clientID})}
}

func NewGoogle(ctx context.Context, clientID string) (*OIDCVerifier, error) {
	return NewOIDC(ctx, GoogleIssuer, clientID)
}

type fetchFailureKey struct{}

// providerKeys records key-set fetch failures for the current Verify call.
// The verifier flattens key-set errors into a string, so the failure is
// carried out through the context instead.
type providerKeys struct {
	oidc.KeySet
}

func (k *providerKeys) VerifySignature(ctx context.Context, jwt string) ([]byte, error) {
	payload, err := k.KeySet.VerifySignature(ctx, jwt)
	// RemoteKeySet only wraps errors that came from fetching the key set;
	// a bad signature is a plain error.
	if err != nil && errors.Unwrap(err) != nil {
		if slot, ok := ctx.Value(fetchFailureKey{}).(*error); ok {
			*slot = err
		}
	}
	return payload, err
}

// Verify maps token and claim problems to ErrInvalidCredential. Failing to
// reach the provider's keys is returned unwrapped so callers can tell an
// outage from a bad token.
func (v *OIDCVerifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	var fetchErr error
	idToken, err := v.verifier.Verify(context.WithValue(ctx, fetchFailureKey{}, &fetchErr), credential)
	if err != nil {
		if fetchErr != nil {
			log.Warn().Err(fetchErr).Msg("oidc fetch keys")
			return nil, fmt.Errorf("identity: fetch provider keys: %w", fetchErr)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("identity: oidc verify: %w", ctxErr)
		}
		log.Debug().Err(err).Msg("oidc verify")
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	var claims struct {
		Subject string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", ErrInvalidCredential, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}
	return &Identity{Subject: claims.Subject, DisplayName: claims.Name, Email: claims.Email}, nil
}
