package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpired means the token was well formed but is past its expiry.
	ErrExpired = errors.New("session token expired")
	// ErrInvalid means the issuer rejected the token or its signature is wrong.
	ErrInvalid = errors.New("session token invalid")
	// ErrUnreachable means the token could not be checked at all.
	ErrUnreachable = errors.New("session verifier unreachable")
)

// Outcome is the result class of a verification.
type Outcome int

const (
	Unauthenticated Outcome = iota
	Valid
	Expired
	Invalid
	Unreachable
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	case Invalid:
		return "invalid"
	case Unreachable:
		return "unreachable"
	default:
		return "unauthenticated"
	}
}

// OutcomeOf classifies a verifier error. Unknown errors count as unreachable
// so that a flaky verifier never logs a user out.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return Valid
	case errors.Is(err, ErrExpired):
		return Expired
	case errors.Is(err, ErrInvalid):
		return Invalid
	default:
		return Unreachable
	}
}

// Verdict is what Provider.Verify reports.
type Verdict struct {
	Outcome Outcome
	User    *User
	Err     error
}

// Verifier checks a token against its issuer. Implementations return one of
// ErrExpired, ErrInvalid or ErrUnreachable (possibly wrapped) on failure.
type Verifier interface {
	Verify(ctx context.Context, token string) (*User, error)
}

// NoopVerifier accepts every token without a profile.
type NoopVerifier struct{}

func (NoopVerifier) Verify(context.Context, string) (*User, error) { return nil, nil }

// ===== JWT =====

// JWTVerifier checks HS256 tokens locally with the issuer's shared secret.
// The subject claim carries the user's email.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewJWTVerifier returns a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), now: time.Now}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (*User, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, fmt.Errorf("%w: %v", ErrExpired, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	return &User{Email: claims.Subject}, nil
}

// ===== Remote =====

// RemoteVerifier asks the auth service who the token belongs to.
type RemoteVerifier struct {
	baseURL    string
	httpClient *http.Client
}

// NewRemoteVerifier returns a verifier calling GET {baseURL}/users/me.
func NewRemoteVerifier(baseURL string, timeout time.Duration) *RemoteVerifier {
	return &RemoteVerifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrUnreachable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", ErrInvalid, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnreachable, resp.StatusCode)
	}

	var u User
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&u); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %v", ErrUnreachable, err)
	}
	return &u, nil
}
