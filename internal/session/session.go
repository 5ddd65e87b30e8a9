// Package session holds the client's authentication state: an opaque token
// persisted to durable storage, rehydrated once at startup, and observed by
// anything that renders controls depending on whether the user is logged in.
//
// Authentication is always derived from token presence. There is no stored
// flag that could drift from the token.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"medpredict/internal/storage"
)

// TokenKey is the durable storage key holding the session token.
const TokenKey = "token"

// ErrNotWatchable is returned by Watch when the storage backend has no
// directory to observe.
var ErrNotWatchable = errors.New("session: storage backend cannot be watched")

// User is the profile attached to a verified session.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// State is an immutable snapshot of the session.
type State struct {
	Token string
	User  *User
}

// IsAuthenticated reports whether a token is held.
func (s State) IsAuthenticated() bool { return s.Token != "" }

// Provider owns the session state for the lifetime of the client process.
// It is safe for concurrent use.
type Provider struct {
	store    storage.Store
	verifier Verifier
	log      *zap.Logger

	// writeMu orders writes so the durable token and the in-memory one are
	// changed together. It is held across store calls; mu is not.
	writeMu sync.Mutex

	mu    sync.RWMutex
	token string
	user  *User

	subMu  sync.Mutex
	subs   map[uint64]func(State)
	nextID uint64
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.log = l.Named("session")
		}
	}
}

// WithVerifier sets the verifier used by Verify. The default trusts any token.
func WithVerifier(v Verifier) Option {
	return func(p *Provider) { p.verifier = v }
}

// New creates a Provider and hydrates it from store exactly once. A nil or
// unreadable store yields an unauthenticated session, never an error.
func New(store storage.Store, opts ...Option) *Provider {
	p := &Provider{
		store:    store,
		verifier: NoopVerifier{},
		log:      zap.NewNop(),
		subs:     make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.token = p.load()
	if p.token != "" {
		p.log.Debug("session rehydrated from storage")
	}
	return p
}

// load reads the durable token, treating every failure as "no token".
func (p *Provider) load() string {
	if p.store == nil {
		return ""
	}
	tok, err := p.store.Get(TokenKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.log.Warn("session storage unavailable, continuing unauthenticated", zap.Error(err))
		}
		return ""
	}
	return tok
}

// Token returns the held token or "".
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// User returns the verified profile, if any.
func (p *Provider) User() *User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.user
}

// IsAuthenticated reports whether a token is held.
func (p *Provider) IsAuthenticated() bool {
	return p.Token() != ""
}

// Snapshot returns the current state.
func (p *Provider) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return State{Token: p.token, User: p.user}
}

// Login stores token durably and marks the session authenticated. A storage
// failure is logged; the in-memory session is updated regardless. An empty
// token is treated as Logout.
func (p *Provider) Login(token string) {
	if token == "" {
		p.Logout()
		return
	}
	p.writeMu.Lock()
	if p.store != nil {
		if err := p.store.Set(TokenKey, token); err != nil {
			p.log.Warn("failed to persist session token", zap.Error(err))
		}
	}
	p.mu.Lock()
	p.token = token
	p.user = nil
	p.mu.Unlock()
	p.writeMu.Unlock()

	p.log.Info("logged in")
	p.notify()
}

// Logout removes the durable token and clears the session. Calling it on a
// logged-out session leaves the state unchanged.
func (p *Provider) Logout() {
	p.writeMu.Lock()
	changed := p.logoutLocked()
	p.writeMu.Unlock()

	if changed {
		p.log.Info("logged out")
		p.notify()
	}
}

// logoutLocked clears the durable and in-memory token. Callers hold writeMu.
func (p *Provider) logoutLocked() (changed bool) {
	if p.store != nil {
		if err := p.store.Delete(TokenKey); err != nil {
			p.log.Warn("failed to remove session token", zap.Error(err))
		}
	}
	p.mu.Lock()
	changed = p.token != "" || p.user != nil
	p.token = ""
	p.user = nil
	p.mu.Unlock()
	return changed
}

// Reload re-reads the durable token, picking up changes made by another
// process. Subscribers are notified only when the token changed.
func (p *Provider) Reload() {
	p.writeMu.Lock()
	tok := p.load()
	p.mu.Lock()
	changed := tok != p.token
	if changed {
		p.token = tok
		p.user = nil
	}
	p.mu.Unlock()
	p.writeMu.Unlock()

	if !changed {
		return
	}

	p.log.Debug("session reloaded", zap.Bool("authenticated", tok != ""))
	p.notify()
}

// Watch reloads the session whenever the token changes on disk, until ctx is
// done. Backends without a directory return ErrNotWatchable at once.
func (p *Provider) Watch(ctx context.Context) error {
	w, ok := p.store.(storage.Watchable)
	if !ok {
		return ErrNotWatchable
	}
	return storage.Watch(ctx, w.Dir(), p.log, func(key string) {
		if key == TokenKey {
			p.Reload()
		}
	})
}

// Subscribe registers fn to receive the state after each change. The returned
// function removes the subscription.
func (p *Provider) Subscribe(fn func(State)) (cancel func()) {
	p.subMu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.subMu.Unlock()

	return func() {
		p.subMu.Lock()
		delete(p.subs, id)
		p.subMu.Unlock()
	}
}

func (p *Provider) notify() {
	st := p.Snapshot()

	p.subMu.Lock()
	fns := make([]func(State), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.subMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// Verify checks the held token with the configured verifier. A valid token
// gets its profile attached; an expired or invalid one is logged out; an
// unreachable verifier leaves the session as it was.
func (p *Provider) Verify(ctx context.Context) Verdict {
	tok := p.Token()
	if tok == "" {
		return Verdict{Outcome: Unauthenticated}
	}

	user, err := p.verifier.Verify(ctx, tok)
	v := Verdict{Outcome: OutcomeOf(err), User: user, Err: err}

	switch v.Outcome {
	case Valid:
		p.mu.Lock()
		// The token may have been replaced while the verifier ran.
		stale := p.token != tok
		if !stale {
			p.user = user
		}
		p.mu.Unlock()
		if !stale {
			p.notify()
		}
	case Expired, Invalid:
		p.log.Info("discarding rejected session token", zap.Stringer("outcome", v.Outcome), zap.Error(err))
		p.writeMu.Lock()
		changed := p.Token() == tok && p.logoutLocked()
		p.writeMu.Unlock()
		if changed {
			p.log.Info("logged out")
			p.notify()
		}
	case Unreachable:
		p.log.Warn("session verification unavailable", zap.Error(err))
	}
	return v
}
