package sessions

import "time"

// Session is a persisted browser session. The id travels in the session
// cookie; the refresh token lets any gateway instance restore the sign-in.
type Session struct {
	ID           string    `bson:"_id" json:"id"`
	RefreshToken string    `bson:"refreshToken" json:"refreshToken"`
	UID          string    `bson:"uid" json:"uid"`
	Email        string    `bson:"email" json:"email"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	ExpiresAt    time.Time `bson:"expiresAt" json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
