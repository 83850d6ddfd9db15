package backend

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Timestamp accepts the date shapes the backend emits: a serialized document
// store timestamp ({"seconds":..} or {"_seconds":..}), an RFC 3339 string or
// a plain YYYY-MM-DD date.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		return nil
	}
	if strings.HasPrefix(s, "{") {
		var raw struct {
			Seconds        *int64 `json:"seconds"`
			AltSeconds     *int64 `json:"_seconds"`
			Nanoseconds    int64  `json:"nanoseconds"`
			AltNanoseconds int64  `json:"_nanoseconds"`
		}
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		switch {
		case raw.Seconds != nil:
			t.Time = time.Unix(*raw.Seconds, raw.Nanoseconds).UTC()
		case raw.AltSeconds != nil:
			t.Time = time.Unix(*raw.AltSeconds, raw.AltNanoseconds).UTC()
		}
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if parsed, err := time.Parse(layout, str); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", str)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// Ack is the body of a successful mutating call.
type Ack struct {
	Message string `json:"message"`
}

// UserSummary is a user as listed by the backend (users, players, ranking).
type UserSummary struct {
	ID       string  `json:"id"`
	Name     string  `json:"nome"`
	Email    string  `json:"email,omitempty"`
	Role     string  `json:"tipo,omitempty"`
	XPTotal  float64 `json:"xpTotal"`
	TeamName string  `json:"nomeTime,omitempty"`
	ImageURL string  `json:"imagemUrl,omitempty"`
}

// Registration creates the profile record for a new account.
type Registration struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"nome"`
	Role  string `json:"tipo"`
}

// ProfileUpdate carries the fields a user may change on their own profile.
type ProfileUpdate struct {
	Name     string `json:"nome,omitempty"`
	TeamName string `json:"nomeTime,omitempty"`
	ImageURL string `json:"imagemUrl,omitempty"`
}

type Organization struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"nome"`
	Description string  `json:"descricao"`
	XPBase      float64 `json:"xpBase"`
	ImageURL    string  `json:"imagemUrl"`
}

// DefaultXPBase applies when an organization has no base XP configured.
const DefaultXPBase = 1000

// EffectiveXPBase returns the base XP championships of o default to.
func (o Organization) EffectiveXPBase() float64 {
	if o.XPBase > 0 {
		return o.XPBase
	}
	return DefaultXPBase
}

// Participant is one result line of a finalized championship.
type Participant struct {
	PlayerID string  `json:"jogadorId"`
	Name     string  `json:"nome"`
	Position int     `json:"posicao"`
	XP       float64 `json:"xpGanho"`
}

type Championship struct {
	ID             string        `json:"id"`
	Name           string        `json:"nome"`
	Description    string        `json:"descricao"`
	Date           Timestamp     `json:"data"`
	XPTotal        float64       `json:"xpTotal"`
	OrganizationID string        `json:"organizadorId,omitempty"`
	Status         string        `json:"status,omitempty"`
	Participants   []Participant `json:"participantes"`
}

// NewChampionship is the create-championship payload. XPTotal is an optional
// override of the organization's base XP; OrganizationID is only sent by a
// global admin.
type NewChampionship struct {
	Name           string   `json:"nome"`
	Description    string   `json:"descricao"`
	Date           string   `json:"data"`
	XPTotal        *float64 `json:"xpTotal"`
	OrganizationID *string  `json:"organizadorId"`
}

// Placement is a top-8 slot of a standard finalization.
type Placement struct {
	PlayerID string `json:"jogadorId"`
	Position int    `json:"posicao"`
}

// Finalization distributes XP with the backend's formula.
type Finalization struct {
	Top8          []Placement `json:"top8"`
	Participation []string    `json:"participation"`
}

// CustomPlacement is a top-8 slot with a manual XP amount.
type CustomPlacement struct {
	PlayerID string  `json:"jogadorId"`
	Position int     `json:"posicao"`
	XP       float64 `json:"xpGanho"`
}

type CustomParticipation struct {
	PlayerIDs []string `json:"jogadorIds"`
	XP        float64  `json:"xpGanho"`
}

// CustomFinalization distributes manually chosen XP per slot.
type CustomFinalization struct {
	Top8          []CustomPlacement   `json:"top8"`
	Participation CustomParticipation `json:"participation"`
}

type RaffleEntry struct {
	PlayerID string `json:"jogadorId,omitempty"`
	Name     string `json:"nome"`
	Number   int    `json:"numero"`
}

type Raffle struct {
	ID           string        `json:"id,omitempty"`
	Name         string        `json:"nome,omitempty"`
	Description  string        `json:"descricao,omitempty"`
	ImageURL     string        `json:"imagemUrl,omitempty"`
	QRCodeURL    string        `json:"qrCodeUrl,omitempty"`
	PaymentInfo  string        `json:"pagamentoDesc,omitempty"`
	Participants []RaffleEntry `json:"participantes"`
}

type Mission struct {
	ID          string  `json:"id"`
	Title       string  `json:"titulo"`
	Description string  `json:"descricao,omitempty"`
	URL         string  `json:"url"`
	XP          float64 `json:"xp,omitempty"`
}

// Ranking holds the two leaderboards.
type Ranking struct {
	Players []UserSummary `json:"players"`
	Fans    []UserSummary `json:"fans"`
}

type ContributionTotals struct {
	Total float64 `json:"total"`
	Count int     `json:"quantidade,omitempty"`
}

// Donation kinds.
const (
	DonationCorporate = "corporativa"
	DonationFanBonus  = "bonus-fa"
)

// Donation registers sponsorship money (corporate) or credits a fan with
// bonus XP for an off-platform donation.
type Donation struct {
	Kind     string  `json:"tipo"`
	Sponsor  string  `json:"patrocinador,omitempty"`
	Amount   float64 `json:"valorTotal"`
	Activity string  `json:"atividade,omitempty"`
	XP       float64 `json:"xpOferecido"`
	FanID    string  `json:"faId,omitempty"`
}

// Thresholds are the XP limits separating ranking tiers, ascending.
type Thresholds struct {
	Levels []float64 `json:"faixas"`
}

type SupportTicket struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}
