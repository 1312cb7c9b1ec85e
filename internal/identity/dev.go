package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DevIssuer = "chatrelay-dev"

// DevClaims 是开发环境使用的 HS256 身份凭证，由 cmd/devtoken 签发。
type DevClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func IssueDevCredential(subject, name, email, secret string, ttl time.Duration) (string, error) {
	if subject == "" || secret == "" {
		return "", errors.New("identity: subject and secret are required")
	}
	now := time.Now()
	claims := DevClaims{
		Name:  name,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DevIssuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// DevVerifier accepts credentials minted by IssueDevCredential.
type DevVerifier struct {
	secret []byte
}

func NewDev(secret string) *DevVerifier {
	return &DevVerifier{secret: []byte(secret)}
}

func (v *DevVerifier) Verify(_ context.Context, credential string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(credential, &DevClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(DevIssuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	claims, ok := token.Claims.(*DevClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidCredential
	}
	return &Identity{Subject: claims.Subject, DisplayName: claims.Name, Email: claims.Email}, nil
}
