package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fgcbrasil/fgcbrasil/gateway/internal/identity"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/profile"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/sessions"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/logger"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/metrics"
)

var (
	// ErrNotFound means the browser session is neither live nor persisted.
	ErrNotFound = errors.New("session not found")
	// ErrStopped is returned when waiting on a store that has been stopped.
	ErrStopped = errors.New("session store stopped")
)

// Client is the per-session auth client owned by a registry entry.
type Client interface {
	identity.Provider
	Restore(ctx context.Context, refreshToken string) (*identity.Identity, error)
	RefreshToken() string
}

// Lookup finds persisted browser sessions and forgets revoked ones.
type Lookup interface {
	Validate(ctx context.Context, id string) (*sessions.Session, error)
	Delete(ctx context.Context, id string) error
}

// Entry is a live browser session.
type Entry struct {
	ID     string
	Store  *Store
	Client Client

	mu       sync.Mutex
	lastSeen time.Time
}

func (e *Entry) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

func (e *Entry) idleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen
}

// Registry owns one Store per browser session id.
type Registry struct {
	feed      profile.Feed
	newClient func() Client
	lookup    Lookup
	idleTTL   time.Duration
	log       *logger.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry
}

// NewRegistry creates a registry. newClient builds a fresh auth client for a
// session being rehydrated; lookup may be nil when sessions are not persisted.
func NewRegistry(feed profile.Feed, newClient func() Client, lookup Lookup, idleTTL time.Duration) *Registry {
	return &Registry{
		feed:      feed,
		newClient: newClient,
		lookup:    lookup,
		idleTTL:   idleTTL,
		log:       logger.Named("session.registry"),
		now:       time.Now,
		entries:   map[string]*Entry{},
	}
}

// NewClient returns a fresh auth client for a new sign-in.
func (r *Registry) NewClient() Client {
	return r.newClient()
}

// Open starts a store for sid around client, replacing any previous one.
func (r *Registry) Open(sid string, client Client) *Entry {
	e := &Entry{ID: sid, Client: client, Store: NewStore(client, r.feed), lastSeen: r.now()}
	e.Store.Start()

	r.mu.Lock()
	prev := r.entries[sid]
	r.entries[sid] = e
	n := len(r.entries)
	r.mu.Unlock()
	metrics.LiveSessions.Set(float64(n))

	if prev != nil {
		prev.Store.Stop()
	}
	return e
}

// Get returns the live entry for sid, rehydrating it from the persisted
// browser session when this gateway has no store for it yet.
func (r *Registry) Get(ctx context.Context, sid string) (*Entry, error) {
	if e := r.live(sid); e != nil {
		return e, nil
	}
	if r.lookup == nil {
		return nil, ErrNotFound
	}
	sess, err := r.lookup.Validate(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, ErrNotFound
	}

	client := r.newClient()
	if _, err := client.Restore(ctx, sess.RefreshToken); err != nil {
		if identity.Revoked(err) {
			r.log.Infof("refresh token for uid=%s was revoked; forgetting session", sess.UID)
			if derr := r.lookup.Delete(ctx, sid); derr != nil {
				r.log.Warnf("failed to remove revoked session: %v", derr)
			}
		}
		return nil, fmt.Errorf("restore session: %w", err)
	}

	// another request may have rehydrated the same session meanwhile
	if e := r.live(sid); e != nil {
		return e, nil
	}
	r.log.Infof("rehydrated session for uid=%s", sess.UID)
	return r.Open(sid, client), nil
}

func (r *Registry) live(sid string) *Entry {
	r.mu.Lock()
	e := r.entries[sid]
	r.mu.Unlock()
	if e != nil {
		e.touch(r.now())
	}
	return e
}

// Close stops and forgets the store for sid.
func (r *Registry) Close(sid string) {
	r.mu.Lock()
	e := r.entries[sid]
	delete(r.entries, sid)
	n := len(r.entries)
	r.mu.Unlock()
	metrics.LiveSessions.Set(float64(n))
	if e != nil {
		e.Store.Stop()
	}
}

// CloseAll stops every store.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = map[string]*Entry{}
	r.mu.Unlock()
	metrics.LiveSessions.Set(0)
	for _, e := range entries {
		e.Store.Stop()
	}
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep stops stores idle for longer than the idle TTL and returns how many.
// The persisted session survives, so a later request rehydrates it.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)
	var idle []*Entry
	r.mu.Lock()
	for sid, e := range r.entries {
		if e.idleSince().Before(cutoff) {
			idle = append(idle, e)
			delete(r.entries, sid)
		}
	}
	n := len(r.entries)
	r.mu.Unlock()
	metrics.LiveSessions.Set(float64(n))

	for _, e := range idle {
		e.Store.Stop()
	}
	if len(idle) > 0 {
		r.log.Debugf("stopped %d idle session stores", len(idle))
	}
	return len(idle)
}

// RunJanitor sweeps every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}
