package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestDevVerifier(t *testing.T) {
	secret := "test-secret"
	good, err := IssueDevCredential("sub-1", "Alice", "alice@example.com", secret, time.Hour)
	if err != nil {
		t.Fatalf("IssueDevCredential() error = %v", err)
	}
	expired, _ := IssueDevCredential("sub-1", "Alice", "alice@example.com", secret, -time.Minute)
	otherSecret, _ := IssueDevCredential("sub-1", "Alice", "alice@example.com", "other", time.Hour)

	wrongIssuer := jwt.NewWithClaims(jwt.SigningMethodHS256, DevClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else", Subject: "sub-1"},
	})
	wrongIssuerStr, _ := wrongIssuer.SignedString([]byte(secret))

	tests := []struct {
		name       string
		credential string
		wantErr    bool
	}{
		{"valid", good, false},
		{"expired", expired, true},
		{"wrong secret", otherSecret, true},
		{"wrong issuer", wrongIssuerStr, true},
		{"garbage", "not-a-token", true},
		{"empty", "", true},
	}

	v := NewDev(secret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := v.Verify(context.Background(), tt.credential)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCredential) {
					t.Errorf("Verify() error = %v, want ErrInvalidCredential", err)
				}
				return
			}
			if id.Subject != "sub-1" || id.DisplayName != "Alice" || id.Email != "alice@example.com" {
				t.Errorf("Verify() = %+v", id)
			}
		})
	}
}

func TestIssueDevCredential_RequiresSubject(t *testing.T) {
	if _, err := IssueDevCredential("", "n", "e", "secret", time.Hour); err == nil {
		t.Error("IssueDevCredential() with empty subject should fail")
	}
}

type stubVerifier struct {
	id  *Identity
	err error
}

func (s stubVerifier) Verify(context.Context, string) (*Identity, error) { return s.id, s.err }

func TestChain(t *testing.T) {
	ok := stubVerifier{id: &Identity{Subject: "s"}}
	bad := stubVerifier{err: ErrInvalidCredential}
	down := stubVerifier{err: errors.New("provider unreachable")}

	if id, err := (Chain{bad, ok}).Verify(context.Background(), "x"); err != nil || id.Subject != "s" {
		t.Errorf("Chain{bad, ok}.Verify() = %v, %v", id, err)
	}
	if _, err := (Chain{bad, bad}).Verify(context.Background(), "x"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Chain{bad, bad}.Verify() error = %v, want ErrInvalidCredential", err)
	}
	if _, err := (Chain{bad, down}).Verify(context.Background(), "x"); err == nil || errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Chain{bad, down}.Verify() error = %v, want provider failure", err)
	}
	if _, err := (Chain{ok}).Verify(context.Background(), ""); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Chain.Verify(empty) error = %v, want ErrInvalidCredential", err)
	}
}
