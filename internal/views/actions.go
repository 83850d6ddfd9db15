package views

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fgcbrasil/fgcbrasil/gateway/internal/backend"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/gate"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/identity"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/profile"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/sessions"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/logger"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("views: invalid form")

// ValidationError rejects a form before anything is sent to the backend.
// Message is shown to the user as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string        { return "invalid form: " + e.Message }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// DefaultParticipationXP is credited to each 9th+ player of a custom
// finalization when the form leaves it empty.
const DefaultParticipationXP = 10

// Actions runs the forms of every view.
type Actions struct {
	client    *backend.Client
	markers   sessions.MarkerStore
	markerTTL time.Duration
	log       *logger.Logger
}

// NewActions builds the form runner. markerTTL bounds how long an opened
// mission link is remembered; it should match the browser session TTL.
func NewActions(client *backend.Client, markers sessions.MarkerStore, markerTTL time.Duration) *Actions {
	return &Actions{
		client:    client,
		markers:   markers,
		markerTTL: markerTTL,
		log:       logger.Named("actions"),
	}
}

func (a *Actions) api(c Caller) *backend.Client {
	if c.Tokens == nil {
		return a.client
	}
	return a.client.WithAuth(c.Tokens)
}

func guard(c Caller, v gate.View) error {
	if !gate.Allowed(c.profile(), v) {
		return ErrForbidden
	}
	return nil
}

type RegisterForm struct {
	Name     string `json:"nome"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"tipo"`
}

// Register creates the account through p, which signs it in, and then the
// profile record. The admin role cannot be chosen here.
func (a *Actions) Register(ctx context.Context, p identity.Provider, f RegisterForm) (*identity.Identity, error) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return nil, invalid("Por favor, informe seu nome ou nick.")
	}
	role := profile.Role(f.Role)
	if role == "" {
		role = profile.RolePlayer
	}
	switch role {
	case profile.RolePlayer, profile.RoleFan, profile.RoleOrganizer:
	default:
		return nil, invalid("Tipo de conta inválido.")
	}

	id, err := p.CreateAccount(ctx, strings.TrimSpace(f.Email), f.Password)
	if err != nil {
		return nil, err
	}
	err = a.client.Register(ctx, backend.Registration{UID: id.UID, Email: id.Email, Name: name, Role: string(role)})
	if err != nil {
		// the account exists; the session stays in finishing-registration
		a.log.Errorf("register profile for %s: %v", id.UID, err)
		return id, err
	}
	return id, nil
}

func (a *Actions) UpdateProfile(ctx context.Context, c Caller, u backend.ProfileUpdate) (backend.Ack, error) {
	if err := guard(c, gate.ViewProfile); err != nil {
		return backend.Ack{}, err
	}
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		return backend.Ack{}, invalid("Por favor, informe seu nome ou nick.")
	}
	return a.api(c).UpdateProfile(ctx, u)
}

type ChampionshipForm struct {
	Name        string `json:"nome"`
	Description string `json:"descricao"`
	Date        string `json:"data"`
	// XPOverride replaces the organization's base XP when > 0.
	XPOverride     float64 `json:"xpTotal"`
	OrganizationID string  `json:"organizadorId"`
}

func (a *Actions) CreateChampionship(ctx context.Context, c Caller, f ChampionshipForm) (backend.Ack, error) {
	if err := guard(c, gate.ViewAdmin); err != nil {
		return backend.Ack{}, err
	}
	globalAdmin := formGlobalAdmin(c.profile())
	if globalAdmin && f.OrganizationID == "" {
		return backend.Ack{}, invalid("Admin Global deve selecionar uma organização.")
	}
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return backend.Ack{}, invalid("Informe o nome do campeonato.")
	}
	if _, err := time.Parse("2006-01-02", f.Date); err != nil {
		return backend.Ack{}, invalid("Data inválida.")
	}

	req := backend.NewChampionship{Name: name, Description: f.Description, Date: f.Date}
	if f.XPOverride > 0 {
		xp := f.XPOverride
		req.XPTotal = &xp
	}
	// organizers create under their own organization, resolved by the backend
	if globalAdmin {
		org := f.OrganizationID
		req.OrganizationID = &org
	}
	if _, err := a.api(c).CreateChampionship(ctx, req); err != nil {
		return backend.Ack{}, err
	}
	return backend.Ack{Message: fmt.Sprintf("Campeonato %q criado com sucesso!", name)}, nil
}

// FinalizeForm is the standard results form: top8 maps a position (1-8) to a
// player id, empty ids meaning an empty slot.
type FinalizeForm struct {
	ChampionshipID string         `json:"campeonatoId"`
	Top8           map[int]string `json:"top8"`
	Participation  []string       `json:"participation"`
}

func (a *Actions) FinalizeChampionship(ctx context.Context, c Caller, f FinalizeForm) (backend.Ack, error) {
	if err := guard(c, gate.ViewAdmin); err != nil {
		return backend.Ack{}, err
	}
	req, err := standardFinalization(f)
	if err != nil {
		return backend.Ack{}, err
	}
	return a.api(c).FinalizeChampionship(ctx, f.ChampionshipID, req)
}

func standardFinalization(f FinalizeForm) (backend.Finalization, error) {
	if f.ChampionshipID == "" {
		return backend.Finalization{}, invalid("Selecione um campeonato.")
	}
	out := backend.Finalization{Top8: []backend.Placement{}, Participation: []string{}}
	seen := map[string]bool{}
	for pos, player := range f.Top8 {
		if pos < 1 || pos > 8 {
			return backend.Finalization{}, invalid(fmt.Sprintf("Posição %d fora do Top 8.", pos))
		}
		if player == "" {
			continue
		}
		if seen[player] {
			return backend.Finalization{}, invalid("Um jogador não pode ocupar duas posições do Top 8.")
		}
		seen[player] = true
		out.Top8 = append(out.Top8, backend.Placement{PlayerID: player, Position: pos})
	}
	sort.Slice(out.Top8, func(i, j int) bool { return out.Top8[i].Position < out.Top8[j].Position })
	for _, id := range f.Participation {
		if id != "" {
			out.Participation = append(out.Participation, id)
		}
	}
	return out, nil
}

type CustomSlot struct {
	PlayerID string  `json:"jogadorId"`
	XP       float64 `json:"xp"`
}

// CustomFinalizeForm assigns XP by hand. ParticipationXP defaults to
// DefaultParticipationXP when nil.
type CustomFinalizeForm struct {
	ChampionshipID  string             `json:"campeonatoId"`
	Top8            map[int]CustomSlot `json:"top8"`
	Participation   []string           `json:"participation"`
	ParticipationXP *float64           `json:"participationXp"`
}

func (a *Actions) FinalizeChampionshipCustom(ctx context.Context, c Caller, f CustomFinalizeForm) (backend.Ack, error) {
	if err := guard(c, gate.ViewAdmin); err != nil {
		return backend.Ack{}, err
	}
	req, err := customFinalization(f)
	if err != nil {
		return backend.Ack{}, err
	}
	return a.api(c).FinalizeChampionshipCustom(ctx, f.ChampionshipID, req)
}

func customFinalization(f CustomFinalizeForm) (backend.CustomFinalization, error) {
	if f.ChampionshipID == "" {
		return backend.CustomFinalization{}, invalid("Selecione um campeonato.")
	}
	xp := float64(DefaultParticipationXP)
	if f.ParticipationXP != nil {
		xp = *f.ParticipationXP
	}
	if xp < 0 {
		return backend.CustomFinalization{}, invalid("O XP de participação não pode ser negativo.")
	}
	out := backend.CustomFinalization{
		Top8:          []backend.CustomPlacement{},
		Participation: backend.CustomParticipation{PlayerIDs: []string{}, XP: xp},
	}
	for pos, slot := range f.Top8 {
		if pos < 1 || pos > 8 {
			return backend.CustomFinalization{}, invalid(fmt.Sprintf("Posição %d fora do Top 8.", pos))
		}
		if slot.PlayerID == "" || slot.XP <= 0 {
			continue
		}
		out.Top8 = append(out.Top8, backend.CustomPlacement{PlayerID: slot.PlayerID, Position: pos, XP: slot.XP})
	}
	sort.Slice(out.Top8, func(i, j int) bool { return out.Top8[i].Position < out.Top8[j].Position })
	for _, id := range f.Participation {
		if id != "" {
			out.Participation.PlayerIDs = append(out.Participation.PlayerIDs, id)
		}
	}
	return out, nil
}

func validOrganization(o backend.Organization) error {
	if strings.TrimSpace(o.Name) == "" {
		return invalid("Informe o nome da organização.")
	}
	if o.XPBase < 0 {
		return invalid("O XP base não pode ser negativo.")
	}
	return nil
}

func (a *Actions) CreateOrganization(ctx context.Context, c Caller, o backend.Organization) (backend.Ack, error) {
	if err := guard(c, gate.ViewAdmin); err != nil {
		return backend.Ack{}, err
	}
	if !formGlobalAdmin(c.profile()) {
		return backend.Ack{}, ErrForbidden
	}
	if err := validOrganization(o); err != nil {
		return backend.Ack{}, err
	}
	o.ID = ""
	return a.api(c).CreateOrganization(ctx, o)
}

// UpdateOrganization saves o. Organizers may only edit their own.
func (a *Actions) UpdateOrganization(ctx context.Context, c Caller, o backend.Organization) (backend.Ack, error) {
	if err := guard(c, gate.ViewAdmin); err != nil {
		return backend.Ack{}, err
	}
	p := c.profile()
	if !formGlobalAdmin(p) && o.ID != p.OrganizationID {
		return backend.Ack{}, ErrForbidden
	}
	if o.ID == "" {
		return backend.Ack{}, invalid("Selecione uma organização.")
	}
	if err := validOrganization(o); err != nil {
		return backend.Ack{}, err
	}
	return a.api(c).UpdateOrganization(ctx, o.ID, o)
}

func (a *Actions) RegisterDonation(ctx context.Context, c Caller, d backend.Donation) (backend.Ack, error) {
	if err := guard(c, gate.ViewAdmin); err != nil {
		return backend.Ack{}, err
	}
	if d.Kind == "" {
		d.Kind = backend.DonationCorporate
	}
	if d.Amount < 0 || d.XP < 0 {
		return backend.Ack{}, invalid("Valores não podem ser negativos.")
	}
	switch d.Kind {
	case backend.DonationCorporate:
		d.Sponsor = strings.TrimSpace(d.Sponsor)
		if d.Sponsor == "" || strings.TrimSpace(d.Activity) == "" {
			return backend.Ack{}, invalid("Informe o patrocinador e a atividade.")
		}
		d.FanID = ""
	case backend.DonationFanBonus:
		if d.FanID == "" {
			return backend.Ack{}, invalid("Selecione o fã.")
		}
		if d.XP <= 0 {
			return backend.Ack{}, invalid("Informe o XP bônus.")
		}
	default:
		return backend.Ack{}, invalid("Tipo de doação inválido.")
	}
	ack, err := a.api(c).RegisterDonation(ctx, d)
	if err != nil {
		return backend.Ack{}, err
	}
	if d.Kind == backend.DonationCorporate {
		ack.Message = fmt.Sprintf("Patrocínio de %q registrado com sucesso!", d.Sponsor)
	}
	return ack, nil
}

// SetRankingThresholds requires strictly ascending, non-negative limits.
func (a *Actions) SetRankingThresholds(ctx context.Context, c Caller, t backend.Thresholds) (backend.Ack, error) {
	if err := guard(c, gate.ViewAdmin); err != nil {
		return backend.Ack{}, err
	}
	if len(t.Levels) == 0 {
		return backend.Ack{}, invalid("Informe ao menos uma faixa.")
	}
	for i, v := range t.Levels {
		if v < 0 {
			return backend.Ack{}, invalid("As faixas não podem ser negativas.")
		}
		if i > 0 && v <= t.Levels[i-1] {
			return backend.Ack{}, invalid("As faixas devem estar em ordem crescente.")
		}
	}
	return a.api(c).SetRankingThresholds(ctx, t)
}

const confirmMessage = "Confirme a operação para continuar."

func (a *Actions) ResetRanking(ctx context.Context, c Caller, confirmed bool) (backend.Ack, error) {
	if err := guard(c, gate.ViewAdmin); err != nil {
		return backend.Ack{}, err
	}
	if !confirmed {
		return backend.Ack{}, invalid(confirmMessage)
	}
	return a.api(c).ResetRanking(ctx)
}

func (a *Actions) AddRaffleEntry(ctx context.Context, c Caller, playerID string) (backend.Ack, error) {
	if err := guard(c, gate.ViewAdmin); err != nil {
		return backend.Ack{}, err
	}
	if playerID == "" {
		return backend.Ack{}, invalid("Você deve selecionar um usuário.")
	}
	return a.api(c).AddRaffleEntry(ctx, playerID)
}

func (a *Actions) ResetRaffle(ctx context.Context, c Caller, confirmed bool) (backend.Ack, error) {
	if err := guard(c, gate.ViewAdmin); err != nil {
		return backend.Ack{}, err
	}
	if !confirmed {
		return backend.Ack{}, invalid(confirmMessage)
	}
	return a.api(c).ResetRaffle(ctx)
}

// OpenMission remembers that the caller followed the mission link and
// returns the mission so the client can open its URL.
func (a *Actions) OpenMission(ctx context.Context, c Caller, missionID string) (backend.Mission, error) {
	if err := guard(c, gate.ViewMissions); err != nil {
		return backend.Mission{}, err
	}
	missions, err := a.api(c).ListMissions(ctx)
	if err != nil {
		return backend.Mission{}, err
	}
	for _, m := range missions {
		if m.ID != missionID {
			continue
		}
		if err := a.markers.Mark(ctx, c.SessionID, missionMarker(m.ID), a.markerTTL); err != nil {
			return backend.Mission{}, fmt.Errorf("mark mission %s: %w", m.ID, err)
		}
		return m, nil
	}
	return backend.Mission{}, invalid("Missão não encontrada.")
}

// CompleteMission claims the mission XP. The link must have been opened in
// this session first; the marker is cleared once the backend accepts.
func (a *Actions) CompleteMission(ctx context.Context, c Caller, missionID string) (backend.Ack, error) {
	if err := guard(c, gate.ViewMissions); err != nil {
		return backend.Ack{}, err
	}
	marker := missionMarker(missionID)
	opened, err := a.markers.Marked(ctx, c.SessionID, marker)
	if err != nil {
		return backend.Ack{}, fmt.Errorf("read mission marker: %w", err)
	}
	if !opened {
		return backend.Ack{}, invalid("Abra o link da missão antes de confirmar.")
	}
	ack, err := a.api(c).CompleteMission(ctx, missionID)
	if err != nil {
		return backend.Ack{}, err
	}
	if err := a.markers.Clear(ctx, c.SessionID, marker); err != nil {
		a.log.Warnf("clear mission marker %s: %v", missionID, err)
	}
	return ack, nil
}

// Contribute is the fan dashboard's donation form.
func (a *Actions) Contribute(ctx context.Context, c Caller, amount float64) (backend.Ack, error) {
	if err := guard(c, gate.ViewDashboard); err != nil {
		return backend.Ack{}, err
	}
	if c.profile().Role != profile.RoleFan {
		return backend.Ack{}, ErrForbidden
	}
	if amount <= 0 {
		return backend.Ack{}, invalid("Informe um valor maior que zero.")
	}
	return a.api(c).Contribute(ctx, amount)
}

func (a *Actions) SendSupportTicket(ctx context.Context, c Caller, t backend.SupportTicket) (backend.Ack, error) {
	if err := guard(c, gate.ViewDashboard); err != nil {
		return backend.Ack{}, err
	}
	t.Subject = strings.TrimSpace(t.Subject)
	t.Message = strings.TrimSpace(t.Message)
	if t.Subject == "" || t.Message == "" {
		return backend.Ack{}, invalid("Informe o assunto e a mensagem.")
	}
	return a.api(c).SendSupportTicket(ctx, t)
}
