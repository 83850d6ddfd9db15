package views

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/fgcbrasil/fgcbrasil/gateway/internal/backend"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/identity"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/profile"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	created *identity.Identity
	err     error
}

func (s *stubProvider) SignIn(ctx context.Context, email, password string) (*identity.Identity, error) {
	return nil, errors.New("not used")
}

func (s *stubProvider) CreateAccount(ctx context.Context, email, password string) (*identity.Identity, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = &identity.Identity{UID: "new-uid", Email: email}
	return s.created, nil
}

func (s *stubProvider) SignOut(ctx context.Context) error { return nil }

func (s *stubProvider) Subscribe(fn func(*identity.Identity)) func() {
	fn(nil)
	return func() {}
}

func (s *stubProvider) Token(ctx context.Context) (string, error) {
	return "", identity.ErrSignedOut
}

func newActions(t *testing.T) (*fakeAPI, *Actions, *sessions.MemoryMarkers) {
	t.Helper()
	api, client := newFakeAPI(t)
	markers := sessions.NewMemoryMarkers()
	return api, NewActions(client, markers, time.Hour), markers
}

func requireInvalid(t *testing.T, err error) {
	t.Helper()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.NotEmpty(t, ve.Message)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegister(t *testing.T) {
	api, a, _ := newActions(t)
	api.on("POST /api/users/register", `{"message":"ok"}`)
	ctx := context.Background()

	p := &stubProvider{}
	_, err := a.Register(ctx, p, RegisterForm{Email: "x@fgc.br", Password: "secret1"})
	requireInvalid(t, err)
	assert.Nil(t, p.created, "no account without a name")

	_, err = a.Register(ctx, p, RegisterForm{Name: "Root", Email: "x@fgc.br", Password: "secret1", Role: "admin"})
	requireInvalid(t, err)

	id, err := a.Register(ctx, p, RegisterForm{Name: " Ana ", Email: "ana@fgc.br", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "new-uid", id.UID)
	body := api.body(t, "POST /api/users/register")
	assert.Equal(t, "new-uid", body["uid"])
	assert.Equal(t, "ana@fgc.br", body["email"])
	assert.Equal(t, "Ana", body["nome"])
	assert.Equal(t, "jogador", body["tipo"])
}

func TestRegister_ProviderErrorPassesThrough(t *testing.T) {
	api, a, _ := newActions(t)
	api.on("POST /api/users/register", `{"message":"ok"}`)
	authErr := &identity.AuthError{Code: identity.CodeEmailInUse}

	_, err := a.Register(context.Background(), &stubProvider{err: authErr}, RegisterForm{Name: "Ana", Role: "fã"})
	assert.ErrorIs(t, err, authErr)
	assert.Equal(t, 0, api.count("POST /api/users/register"))
}

func TestActions_AdminFormsRequireAdminView(t *testing.T) {
	_, a, _ := newActions(t)
	ctx := context.Background()
	for _, p := range []*profile.Profile{player, fan, {ID: "x", Role: profile.RoleAdmin}} {
		c := caller(p)
		_, err := a.CreateChampionship(ctx, c, ChampionshipForm{Name: "Copa", Date: "2026-01-01", OrganizationID: "o1"})
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = a.ResetRanking(ctx, c, true)
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = a.AddRaffleEntry(ctx, c, "p1")
		assert.ErrorIs(t, err, ErrForbidden)
	}
}

func TestCreateChampionship(t *testing.T) {
	api, a, _ := newActions(t)
	api.on("POST /api/championships", `{"message":"criado"}`)
	ctx := context.Background()
	c := caller(globalAdmin)

	_, err := a.CreateChampionship(ctx, c, ChampionshipForm{Name: "Copa", Date: "2026-01-01"})
	requireInvalid(t, err)
	_, err = a.CreateChampionship(ctx, c, ChampionshipForm{Name: "Copa", Date: "01/01/2026", OrganizationID: "o1"})
	requireInvalid(t, err)
	assert.Equal(t, 0, api.count("POST /api/championships"))

	ack, err := a.CreateChampionship(ctx, c, ChampionshipForm{Name: "Copa", Date: "2026-01-01", OrganizationID: "o1", XPOverride: -5})
	require.NoError(t, err)
	assert.Contains(t, ack.Message, "Copa")
	body := api.body(t, "POST /api/championships")
	assert.Nil(t, body["xpTotal"])
	assert.Equal(t, "o1", body["organizadorId"])

	_, err = a.CreateChampionship(ctx, c, ChampionshipForm{Name: "Copa", Date: "2026-01-01", OrganizationID: "o1", XPOverride: 750})
	require.NoError(t, err)
	assert.Equal(t, float64(750), api.body(t, "POST /api/championships")["xpTotal"])
}

func TestStandardFinalization(t *testing.T) {
	_, err := standardFinalization(FinalizeForm{})
	requireInvalid(t, err)

	_, err = standardFinalization(FinalizeForm{ChampionshipID: "c1", Top8: map[int]string{9: "p1"}})
	requireInvalid(t, err)

	_, err = standardFinalization(FinalizeForm{ChampionshipID: "c1", Top8: map[int]string{1: "p1", 2: "p1"}})
	requireInvalid(t, err)

	got, err := standardFinalization(FinalizeForm{
		ChampionshipID: "c1",
		Top8:           map[int]string{3: "p3", 1: "p1", 2: "", 8: "p8"},
		Participation:  []string{"p9", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, []backend.Placement{{PlayerID: "p1", Position: 1}, {PlayerID: "p3", Position: 3}, {PlayerID: "p8", Position: 8}}, got.Top8)
	assert.Equal(t, []string{"p9"}, got.Participation)
}

func TestCustomFinalization(t *testing.T) {
	got, err := customFinalization(CustomFinalizeForm{
		ChampionshipID: "c1",
		Top8: map[int]CustomSlot{
			1: {PlayerID: "p1", XP: 500},
			2: {PlayerID: "p2", XP: 0},
			3: {PlayerID: "", XP: 100},
		},
		Participation: []string{"p9"},
	})
	require.NoError(t, err)
	assert.Equal(t, []backend.CustomPlacement{{PlayerID: "p1", Position: 1, XP: 500}}, got.Top8)
	assert.Equal(t, float64(DefaultParticipationXP), got.Participation.XP)
	assert.Equal(t, []string{"p9"}, got.Participation.PlayerIDs)

	xp := 25.0
	got, err = customFinalization(CustomFinalizeForm{ChampionshipID: "c1", ParticipationXP: &xp})
	require.NoError(t, err)
	assert.Equal(t, 25.0, got.Participation.XP)
	assert.Empty(t, got.Top8)

	neg := -1.0
	_, err = customFinalization(CustomFinalizeForm{ChampionshipID: "c1", ParticipationXP: &neg})
	requireInvalid(t, err)
}

func TestFinalizeChampionship_SendsToBackend(t *testing.T) {
	api, a, _ := newActions(t)
	api.on("POST /api/admin/championships/c1/finalize", `{"message":"Resultados lançados"}`)

	ack, err := a.FinalizeChampionship(context.Background(), caller(globalAdmin), FinalizeForm{ChampionshipID: "c1", Top8: map[int]string{1: "p1"}})
	require.NoError(t, err)
	assert.Equal(t, "Resultados lançados", ack.Message)
	top8 := api.body(t, "POST /api/admin/championships/c1/finalize")["top8"].([]interface{})
	require.Len(t, top8, 1)
}

func TestOrganizations(t *testing.T) {
	api, a, _ := newActions(t)
	api.on("POST /api/organizacoes", `{"message":"criada"}`)
	api.on("PUT /api/organizacoes/o1", `{"message":"salva"}`)
	ctx := context.Background()
	c := caller(globalAdmin)

	_, err := a.CreateOrganization(ctx, c, backend.Organization{Name: " "})
	requireInvalid(t, err)
	_, err = a.CreateOrganization(ctx, c, backend.Organization{Name: "Arena", XPBase: -1})
	requireInvalid(t, err)
	ack, err := a.CreateOrganization(ctx, c, backend.Organization{ID: "ignored", Name: "Arena", XPBase: 1000})
	require.NoError(t, err)
	assert.Equal(t, "criada", ack.Message)
	assert.NotContains(t, api.body(t, "POST /api/organizacoes"), "id")

	_, err = a.UpdateOrganization(ctx, c, backend.Organization{Name: "Arena"})
	requireInvalid(t, err)
	ack, err = a.UpdateOrganization(ctx, c, backend.Organization{ID: "o1", Name: "Arena 2"})
	require.NoError(t, err)
	assert.Equal(t, "salva", ack.Message)
}

func TestRegisterDonation(t *testing.T) {
	api, a, _ := newActions(t)
	api.on("POST /api/donations", `{"message":"ok"}`)
	ctx := context.Background()
	c := caller(globalAdmin)

	_, err := a.RegisterDonation(ctx, c, backend.Donation{Sponsor: "Loja"})
	requireInvalid(t, err)
	_, err = a.RegisterDonation(ctx, c, backend.Donation{Kind: backend.DonationFanBonus})
	requireInvalid(t, err)
	_, err = a.RegisterDonation(ctx, c, backend.Donation{Kind: "outro"})
	requireInvalid(t, err)
	_, err = a.RegisterDonation(ctx, c, backend.Donation{Sponsor: "Loja", Activity: "Major", Amount: -1})
	requireInvalid(t, err)

	ack, err := a.RegisterDonation(ctx, c, backend.Donation{Sponsor: "Loja", Activity: "Major", Amount: 500, XP: 10})
	require.NoError(t, err)
	assert.Contains(t, ack.Message, "Loja")
	assert.Equal(t, "corporativa", api.body(t, "POST /api/donations")["tipo"])

	ack, err = a.RegisterDonation(ctx, c, backend.Donation{Kind: backend.DonationFanBonus, FanID: "f1", XP: 40})
	require.NoError(t, err)
	assert.Equal(t, "ok", ack.Message)
}

func TestSetRankingThresholds(t *testing.T) {
	api, a, _ := newActions(t)
	api.on("PUT /api/admin/ranking/thresholds", `{"message":"ok"}`)
	ctx := context.Background()
	c := caller(globalAdmin)

	for _, bad := range [][]float64{nil, {100, 100}, {500, 100}, {-1, 10}} {
		_, err := a.SetRankingThresholds(ctx, c, backend.Thresholds{Levels: bad})
		requireInvalid(t, err)
	}
	_, err := a.SetRankingThresholds(ctx, c, backend.Thresholds{Levels: []float64{0, 100, 1000}})
	require.NoError(t, err)
	assert.Equal(t, 1, api.count("PUT /api/admin/ranking/thresholds"))
}

func TestResetsNeedConfirmation(t *testing.T) {
	api, a, _ := newActions(t)
	api.on("POST /api/admin/ranking/reset", `{"message":"zerado"}`)
	api.on("DELETE /api/rifa/reset", `{"message":"rifa zerada"}`)
	ctx := context.Background()
	c := caller(globalAdmin)

	_, err := a.ResetRanking(ctx, c, false)
	requireInvalid(t, err)
	_, err = a.ResetRaffle(ctx, c, false)
	requireInvalid(t, err)
	assert.Equal(t, 0, api.count("POST /api/admin/ranking/reset"))
	assert.Equal(t, 0, api.count("DELETE /api/rifa/reset"))

	ack, err := a.ResetRanking(ctx, c, true)
	require.NoError(t, err)
	assert.Equal(t, "zerado", ack.Message)
	ack, err = a.ResetRaffle(ctx, c, true)
	require.NoError(t, err)
	assert.Equal(t, "rifa zerada", ack.Message)
}

func TestAddRaffleEntry(t *testing.T) {
	api, a, _ := newActions(t)
	api.on("POST /api/rifa/add-participante", `{"message":"Cota 7 adicionada"}`)

	_, err := a.AddRaffleEntry(context.Background(), caller(globalAdmin), "")
	requireInvalid(t, err)
	ack, err := a.AddRaffleEntry(context.Background(), caller(globalAdmin), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Cota 7 adicionada", ack.Message)
}

func TestMissionFlow(t *testing.T) {
	api, a, markers := newActions(t)
	api.on("GET /api/missions", `[{"id":"m2","titulo":"Curtir","url":"https://example.com/m2"}]`)
	api.on("POST /api/missions/complete", `{"message":"Missão completada! +50 XP"}`)
	ctx := context.Background()
	c := caller(fan)

	_, err := a.CompleteMission(ctx, c, "m2")
	requireInvalid(t, err)
	assert.Equal(t, 0, api.count("POST /api/missions/complete"))

	_, err = a.OpenMission(ctx, c, "unknown")
	requireInvalid(t, err)

	m, err := a.OpenMission(ctx, c, "m2")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/m2", m.URL)
	marked, err := markers.Marked(ctx, "sid-1", missionMarker("m2"))
	require.NoError(t, err)
	assert.True(t, marked)

	ack, err := a.CompleteMission(ctx, c, "m2")
	require.NoError(t, err)
	assert.Equal(t, "Missão completada! +50 XP", ack.Message)
	assert.Equal(t, "m2", api.body(t, "POST /api/missions/complete")["missionId"])
	marked, err = markers.Marked(ctx, "sid-1", missionMarker("m2"))
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestCompleteMission_BackendRejectionKeepsMarker(t *testing.T) {
	api, a, markers := newActions(t)
	api.fail("POST /api/missions/complete", http.StatusConflict, "Missão já completada")
	ctx := context.Background()
	require.NoError(t, markers.Mark(ctx, "sid-1", missionMarker("m2"), time.Hour))

	_, err := a.CompleteMission(ctx, caller(fan), "m2")
	assert.Equal(t, "Missão já completada", backend.Message(err))
	marked, _ := markers.Marked(ctx, "sid-1", missionMarker("m2"))
	assert.True(t, marked)
}

func TestMissions_FansOnly(t *testing.T) {
	_, a, _ := newActions(t)
	_, err := a.OpenMission(context.Background(), caller(player), "m1")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = a.CompleteMission(context.Background(), caller(player), "m1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestContribute(t *testing.T) {
	api, a, _ := newActions(t)
	api.on("POST /api/contributions", `{"message":"Obrigado!"}`)
	ctx := context.Background()

	_, err := a.Contribute(ctx, caller(player), 10)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = a.Contribute(ctx, caller(fan), 0)
	requireInvalid(t, err)

	ack, err := a.Contribute(ctx, caller(fan), 15)
	require.NoError(t, err)
	assert.Equal(t, "Obrigado!", ack.Message)
	assert.Equal(t, float64(15), api.body(t, "POST /api/contributions")["valor"])
}

func TestSupportTicketAndProfile(t *testing.T) {
	api, a, _ := newActions(t)
	api.on("POST /api/support/send-ticket", `{"message":"Enviado"}`)
	api.on("PUT /api/users/profile", `{"message":"Perfil salvo"}`)
	ctx := context.Background()

	_, err := a.SendSupportTicket(ctx, caller(player), backend.SupportTicket{Subject: "Oi"})
	requireInvalid(t, err)
	ack, err := a.SendSupportTicket(ctx, caller(player), backend.SupportTicket{Subject: "Oi", Message: "Ajuda"})
	require.NoError(t, err)
	assert.Equal(t, "Enviado", ack.Message)

	_, err = a.SendSupportTicket(ctx, Caller{}, backend.SupportTicket{Subject: "Oi", Message: "Ajuda"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = a.UpdateProfile(ctx, caller(globalAdmin), backend.ProfileUpdate{Name: "Root"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = a.UpdateProfile(ctx, caller(player), backend.ProfileUpdate{Name: " "})
	requireInvalid(t, err)
	ack, err = a.UpdateProfile(ctx, caller(player), backend.ProfileUpdate{Name: "Ana", TeamName: "Equipe"})
	require.NoError(t, err)
	assert.Equal(t, "Perfil salvo", ack.Message)
}
