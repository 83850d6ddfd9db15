// Package session keeps the authoritative snapshot of who is signed in and
// which profile they have, one Store per browser session.
package session

import (
	"context"
	"sync"

	"github.com/fgcbrasil/fgcbrasil/gateway/internal/identity"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/profile"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/logger"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/metrics"
)

// State is the coarse phase of a snapshot.
type State string

const (
	StateSignedOut      State = "signed_out"
	StateResolving      State = "resolving"
	StatePendingProfile State = "pending_profile"
	StateReady          State = "ready"
)

// Snapshot is the read-only view of a session. Profile is never set while
// Identity is nil.
type Snapshot struct {
	Identity  *identity.Identity `json:"identity"`
	Profile   *profile.Profile   `json:"profile"`
	Resolving bool               `json:"resolving"`
}

func (s Snapshot) State() State {
	switch {
	case s.Resolving:
		return StateResolving
	case s.Identity == nil:
		return StateSignedOut
	case s.Profile == nil:
		return StatePendingProfile
	default:
		return StateReady
	}
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{Resolving: s.Resolving, Profile: s.Profile.Clone()}
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	return out
}

type identityChanged struct{ id *identity.Identity }

type profileChanged struct {
	gen uint64
	uid string
	doc *profile.Profile
}

type profileFailed struct {
	gen uint64
	uid string
	err error
}

const eventBuffer = 32

// Store composes the auth provider's identity notifications with at most one
// profile feed subscription. All state changes happen on one goroutine, which
// is also where subscribers are notified.
type Store struct {
	auth identity.Provider
	feed profile.Feed
	log  *logger.Logger

	events   chan interface{}
	done     chan struct{}
	loopDone chan struct{}

	lifeMu    sync.Mutex
	started   bool
	stopped   bool
	unsubAuth func()

	mu   sync.RWMutex
	snap Snapshot

	subMu   sync.Mutex
	subs    map[uint64]func(Snapshot)
	nextSub uint64

	// owned by the loop goroutine
	gen       uint64
	uid       string
	feedStop  chan struct{}
	closeFeed func()
}

// NewStore builds a store around an explicitly constructed provider and feed.
// The snapshot starts in the resolving window until the provider reports.
func NewStore(auth identity.Provider, feed profile.Feed) *Store {
	return &Store{
		auth:     auth,
		feed:     feed,
		log:      logger.Named("session"),
		events:   make(chan interface{}, eventBuffer),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		snap:     Snapshot{Resolving: true},
		subs:     map[uint64]func(Snapshot){},
	}
}

// Start begins listening to identity changes. Calls after the first, or after
// Stop, do nothing.
func (s *Store) Start() {
	s.lifeMu.Lock()
	if s.started || s.stopped {
		s.lifeMu.Unlock()
		return
	}
	s.started = true
	s.lifeMu.Unlock()

	go s.loop()

	unsub := s.auth.Subscribe(func(id *identity.Identity) {
		var cp *identity.Identity
		if id != nil {
			v := *id
			cp = &v
		}
		s.enqueue(identityChanged{id: cp}, nil)
	})

	s.lifeMu.Lock()
	if s.stopped {
		s.lifeMu.Unlock()
		unsub()
		return
	}
	s.unsubAuth = unsub
	s.lifeMu.Unlock()
}

// Stop releases the identity listener and any open profile subscription.
// It is idempotent and safe to call before Start.
func (s *Store) Stop() {
	s.lifeMu.Lock()
	if s.stopped {
		s.lifeMu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	unsub := s.unsubAuth
	s.unsubAuth = nil
	s.lifeMu.Unlock()

	if unsub != nil {
		unsub()
	}
	close(s.done)
	if started {
		<-s.loopDone
	}
}

// Done is closed once the store has been stopped.
func (s *Store) Done() <-chan struct{} { return s.done }

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// Subscribe registers fn for every later snapshot change. fn runs on the
// store's goroutine and must not block for long.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// Settled waits until the snapshot leaves the resolving window.
func (s *Store) Settled(ctx context.Context) (Snapshot, error) {
	ch := make(chan Snapshot, 1)
	unsub := s.Subscribe(func(snap Snapshot) {
		if snap.Resolving {
			return
		}
		select {
		case ch <- snap:
		default:
		}
	})
	defer unsub()

	if snap := s.Snapshot(); !snap.Resolving {
		return snap, nil
	}
	select {
	case snap := <-ch:
		return snap, nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	case <-s.done:
		return s.Snapshot(), ErrStopped
	}
}

// enqueue hands an event to the loop. stop aborts the send when the feed
// that produced the event has been closed.
func (s *Store) enqueue(ev interface{}, stop <-chan struct{}) {
	select {
	case s.events <- ev:
	case <-s.done:
	case <-stop:
	}
}

func (s *Store) loop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.done:
			s.closeProfile()
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Store) handle(ev interface{}) {
	switch ev := ev.(type) {
	case identityChanged:
		s.onIdentity(ev.id)
	case profileChanged:
		if s.stale(ev.gen, ev.uid) {
			return
		}
		cur := s.Snapshot()
		s.apply(Snapshot{Identity: cur.Identity, Profile: ev.doc})
	case profileFailed:
		if s.stale(ev.gen, ev.uid) {
			return
		}
		s.log.Warnf("profile feed for uid=%s failed: %v", ev.uid, ev.err)
		metrics.ProfileFeedErrors.Inc()
		cur := s.Snapshot()
		s.apply(Snapshot{Identity: cur.Identity})
	}
}

func (s *Store) onIdentity(id *identity.Identity) {
	s.closeProfile()
	s.gen++
	if id == nil {
		s.uid = ""
		s.apply(Snapshot{})
		return
	}
	s.uid = id.UID
	s.apply(Snapshot{Identity: id, Resolving: true})
	s.openProfile(s.gen, id.UID)
}

func (s *Store) openProfile(gen uint64, uid string) {
	stop := make(chan struct{})
	s.feedStop = stop
	s.closeFeed = s.feed.Subscribe(uid,
		func(doc *profile.Profile) {
			s.enqueue(profileChanged{gen: gen, uid: uid, doc: doc.Clone()}, stop)
		},
		func(err error) {
			s.enqueue(profileFailed{gen: gen, uid: uid, err: err}, stop)
		},
	)
	s.log.Debugf("profile subscription opened for uid=%s gen=%d", uid, gen)
}

func (s *Store) closeProfile() {
	if s.feedStop != nil {
		close(s.feedStop)
		s.feedStop = nil
	}
	if s.closeFeed != nil {
		s.closeFeed()
		s.closeFeed = nil
	}
}

// stale reports whether a feed delivery belongs to a subscription that is no
// longer the current one.
func (s *Store) stale(gen uint64, uid string) bool {
	if gen == s.gen && uid == s.uid && s.uid != "" {
		return false
	}
	metrics.StaleProfileUpdates.Inc()
	s.log.Debugf("dropping profile delivery for uid=%s gen=%d (current uid=%s gen=%d)", uid, gen, s.uid, s.gen)
	return true
}

func (s *Store) apply(next Snapshot) {
	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()
	metrics.SessionTransitions.WithLabelValues(string(next.State())).Inc()

	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(next.clone())
	}
}
