package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Service wraps repository operations with business logic
type Service struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

func NewService(r Repository, ttl time.Duration) *Service {
	return &Service{repo: r, ttl: ttl, now: time.Now}
}

// TTL is the lifetime given to new sessions.
func (s *Service) TTL() time.Duration { return s.ttl }

// CreateSession stores a new browser session for a signed-in identity and
// returns it with a freshly generated id.
func (s *Service) CreateSession(ctx context.Context, uid, email, refreshToken string) (*Session, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &Session{
		ID:           hex.EncodeToString(b),
		RefreshToken: refreshToken,
		UID:          uid,
		Email:        email,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Validate returns the session if it exists and has not expired
func (s *Service) Validate(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if sess.Expired(s.now().UTC()) {
		// cleanup expired session
		_ = s.repo.Delete(ctx, id)
		return nil, nil
	}
	return sess, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
