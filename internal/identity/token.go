package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the registered claims plus the provider-specific account
// and email claims found in an ID token.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

// ParseIDToken validates a provider-signed ID token and extracts the
// identity it asserts. The subject claim is the environment-scoped identity
// id; account_id is the cross-environment secondary key.
func ParseIDToken(tokenString string, secretKey []byte) (*Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidToken)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.AccountID == "" {
		return nil, fmt.Errorf("token missing subject or account_id: %w", ErrInvalidToken)
	}

	return &Identity{
		ID:        claims.Subject,
		AccountID: claims.AccountID,
		Email:     claims.Email,
	}, nil
}

// SignIDToken mints a token asserting the given identity. Used by tests and
// by the CLI's local stub provider.
func SignIDToken(id *Identity, secretKey []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: id.ID},
		AccountID:        id.AccountID,
		Email:            id.Email,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}
