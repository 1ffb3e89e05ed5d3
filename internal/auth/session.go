// Package auth verifies bearer session tokens for the websocket gateway.
// Tokens are minted elsewhere; the core only checks them.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification,
// including expired ones. Callers treat all failures the same way: close
// the handshake with a policy violation.
var ErrInvalidToken = errors.New("invalid token")

// Session is the decoded identity behind a bearer token.
type Session struct {
	UserID int64
	Expiry time.Time
}

// SessionVerifier translates an opaque bearer token into a session. The
// core treats verification as total and deterministic.
type SessionVerifier interface {
	Verify(token string) (Session, error)
}

// JWTVerifier verifies HMAC-SHA256 signed session tokens whose "sub"
// claim carries the user id.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier builds a verifier from the shared session secret. An
// empty secret is a boot-time configuration error, checked by the caller.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(tokenString string) (Session, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !t.Valid {
		return Session{}, ErrInvalidToken
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Session{}, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Session{}, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return Session{}, ErrInvalidToken
	}

	sess := Session{UserID: userID}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		sess.Expiry = exp.Time
	}
	return sess, nil
}

// MintToken signs a session token for the given user. Used by tests and
// local tooling; production tokens come from the account service.
func (v *JWTVerifier) MintToken(userID int64, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
	}
	if ttl != 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
