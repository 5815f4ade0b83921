// Package approval issues and redeems signed approval tokens.
//
// When a workflow suspends for a human decision, the manager attaches a
// token to the approval_required or blocked event. Whoever carries the
// decision back (a chat bot, a web UI, a CLI) presents the token, and
// Redeem proves it was minted for exactly that workflow and node, has
// not expired, and has not been used before. Tokens are HMAC-signed
// JWTs; the single-use registry is in-memory, so uniqueness holds per
// process.
package approval

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// Approval token errors.
var (
	// ErrInvalidToken indicates the token is malformed or has an
	// invalid signature.
	ErrInvalidToken = errors.New("invalid approval token")

	// ErrTokenExpired indicates the token has expired.
	ErrTokenExpired = errors.New("approval token expired")

	// ErrTokenUsed indicates the token was already redeemed.
	ErrTokenUsed = errors.New("approval token already used")

	// ErrTokenMismatch indicates the token was minted for a different
	// workflow or node.
	ErrTokenMismatch = errors.New("approval token does not match workflow")

	// ErrSecretTooShort indicates the signing secret is too short.
	ErrSecretTooShort = errors.New("approval secret must be at least 32 bytes")
)

// DefaultTTL is how long an approval token stays valid. Approvals
// routinely wait overnight, so this errs long; the checkpoint TTL
// still bounds the workflow itself.
const DefaultTTL = 24 * time.Hour

// Claims are the signed contents of an approval token. Subject holds
// the workflow ID, ID the single-use nonce.
type Claims struct {
	jwt.RegisteredClaims
	Node string `json:"node"`
}

// Issuer mints and redeems approval tokens.
type Issuer struct {
	secret []byte
	name   string
	ttl    time.Duration

	mu   sync.Mutex
	used map[string]time.Time // nonce -> token expiry
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithTTL sets the token lifetime. Defaults to DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(i *Issuer) { i.ttl = d }
}

// WithIssuerName sets the iss claim. Defaults to "conductor".
func WithIssuerName(name string) Option {
	return func(i *Issuer) { i.name = name }
}

// NewIssuer creates an issuer with the given HMAC secret.
func NewIssuer(secret []byte, opts ...Option) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, ErrSecretTooShort
	}
	i := &Issuer{
		secret: secret,
		name:   "conductor",
		ttl:    DefaultTTL,
		used:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue mints a token for one pending decision on one workflow node.
func (i *Issuer) Issue(workflowID, node string) (string, error) {
	if workflowID == "" || node == "" {
		return "", fmt.Errorf("issue approval token: workflow and node are required")
	}

	nonce, err := nanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.name,
			Subject:   workflowID,
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Node: node,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Redeem validates a token against the expected workflow and node and
// consumes it. A second redemption of the same token fails with
// ErrTokenUsed.
func (i *Issuer) Redeem(token, workflowID, node string) error {
	claims, err := i.parse(token)
	if err != nil {
		return err
	}
	if claims.Subject != workflowID || claims.Node != node {
		return ErrTokenMismatch
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.pruneLocked(time.Now())

	if _, dup := i.used[claims.ID]; dup {
		return ErrTokenUsed
	}
	exp := time.Now().Add(i.ttl)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	i.used[claims.ID] = exp
	return nil
}

// Inspect validates a token and returns its claims without consuming
// it. Useful for showing what a token would approve.
func (i *Issuer) Inspect(token string) (*Claims, error) {
	return i.parse(token)
}

func (i *Issuer) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	if i.name != "" && claims.Issuer != i.name {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// pruneLocked drops nonces whose tokens can no longer validate anyway.
// Caller holds i.mu.
func (i *Issuer) pruneLocked(now time.Time) {
	for nonce, exp := range i.used {
		if now.After(exp) {
			delete(i.used, nonce)
		}
	}
}
