package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Provider yields the stable numeric user id that scopes the sync connection
// and is stamped on outbound messages.
type Provider interface {
	UserID() (int, error)
}

// Static pins the user id, for tests and explicit configuration.
type Static int

func (s Static) UserID() (int, error) {
	return int(s), nil
}

// TokenProvider derives the user id from the subject claim of a bearer token
// issued by the identity service. The signature is not checked here; the sync
// server verifies the token itself, this side only needs a stable id out of
// it.
type TokenProvider struct {
	token string
}

func NewTokenProvider(token string) *TokenProvider {
	return &TokenProvider{token: token}
}

func (p *TokenProvider) UserID() (int, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(p.token, jwt.MapClaims{})
	if err != nil {
		return 0, fmt.Errorf("parsing identity token: %w", err)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return 0, fmt.Errorf("reading subject claim: %w", err)
	}

	return HashSubject(subject), nil
}

// HashSubject folds an opaque provider subject into a non-negative 31-bit id.
// An empty subject maps to 1 so an anonymous session still gets a usable id.
func HashSubject(subject string) int {
	if subject == "" {
		return 1
	}

	var hash int32
	for _, ch := range subject {
		hash = (hash << 5) - hash + int32(ch)
	}
	if hash < 0 {
		hash = -hash
	}
	return int(hash)
}
