// Package profile holds the application-level user record and the live feeds
// that deliver it keyed by identity uid.
package profile

// Role is the closed set of account types stored in the tipo field.
type Role string

const (
	RolePlayer    Role = "jogador"
	RoleFan       Role = "fã"
	RoleOrganizer Role = "organizador"
	RoleAdmin     Role = "admin"
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{RolePlayer, RoleFan, RoleOrganizer, RoleAdmin}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePlayer, RoleFan, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// Profile is the user record created by the backend at registration time.
// The gateway never writes it; it is only read through a Feed.
type Profile struct {
	ID    string `bson:"_id,omitempty" json:"id"`
	Name  string `bson:"nome" json:"nome"`
	Email string `bson:"email" json:"email"`
	Role  Role   `bson:"tipo" json:"tipo"`
	// Admin is the global-admin flag. The admin role unlocks administrative
	// views only together with it.
	Admin   bool    `bson:"admin" json:"admin"`
	XPTotal float64 `bson:"xpTotal" json:"xpTotal"`

	Championships     []string                 `bson:"campeonatosParticipados,omitempty" json:"campeonatosParticipados,omitempty"`
	CompletedMissions []string                 `bson:"missoesCompletas,omitempty" json:"missoesCompletas,omitempty"`
	Contributions     []map[string]interface{} `bson:"contribuicoes,omitempty" json:"contribuicoes,omitempty"`
	TeamName          string                   `bson:"nomeTime,omitempty" json:"nomeTime,omitempty"`
	OrganizationID    string                   `bson:"organizacaoId,omitempty" json:"organizacaoId,omitempty"`
	ImageURL          string                   `bson:"imagemUrl,omitempty" json:"imagemUrl,omitempty"`
}

// GlobalAdmin reports whether the profile holds both the admin role and flag.
func (p *Profile) GlobalAdmin() bool {
	return p != nil && p.Role == RoleAdmin && p.Admin
}

// HasCompletedMission reports whether id is in the completed missions list.
func (p *Profile) HasCompletedMission(id string) bool {
	if p == nil {
		return false
	}
	for _, m := range p.CompletedMissions {
		if m == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so snapshots never share slices with a feed.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Championships = append([]string(nil), p.Championships...)
	cp.CompletedMissions = append([]string(nil), p.CompletedMissions...)
	cp.Contributions = append([]map[string]interface{}(nil), p.Contributions...)
	return &cp
}

// Feed delivers the profile document for a uid. onUpdate receives nil when the
// document does not exist. Both callbacks run on the feed's own goroutine,
// never on the caller of Subscribe. The returned func stops the subscription
// and may be called more than once.
type Feed interface {
	Subscribe(uid string, onUpdate func(*Profile), onError func(error)) (unsubscribe func())
}
