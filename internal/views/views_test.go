package views

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fgcbrasil/fgcbrasil/gateway/internal/backend"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/config"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/gate"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/identity"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/profile"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/session"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenFunc func() string

func (f tokenFunc) Token(ctx context.Context) (string, error) { return f(), nil }

// fakeAPI serves canned JSON per "METHOD /path" and records request bodies.
type fakeAPI struct {
	mu       sync.Mutex
	routes   map[string]string
	statuses map[string]int
	bodies   map[string][]byte
	hits     map[string]int
}

func newFakeAPI(t *testing.T) (*fakeAPI, *backend.Client) {
	t.Helper()
	f := &fakeAPI{
		routes:   map[string]string{},
		statuses: map[string]int{},
		bodies:   map[string][]byte{},
		hits:     map[string]int{},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.hits[key]++
		f.bodies[key] = raw
		body, ok := f.routes[key]
		status := f.statuses[key]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"rota desconhecida"}`))
			return
		}
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return f, backend.NewClient(srv.URL, time.Second)
}

func (f *fakeAPI) on(route, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = body
}

func (f *fakeAPI) fail(route string, status int, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = `{"error":"` + msg + `"}`
	f.statuses[route] = status
}

func (f *fakeAPI) count(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[route]
}

func (f *fakeAPI) body(t *testing.T, route string) map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	raw := f.bodies[route]
	f.mu.Unlock()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func caller(p *profile.Profile) Caller {
	return Caller{
		SessionID: "sid-1",
		Snapshot:  session.Snapshot{Identity: &identity.Identity{UID: p.ID}, Profile: p},
		Tokens:    tokenFunc(func() string { return "tok" }),
	}
}

var (
	fan         = &profile.Profile{ID: "f1", Name: "Fã", Role: profile.RoleFan, XPTotal: 30, CompletedMissions: []string{"m1"}}
	player      = &profile.Profile{ID: "p1", Name: "Ana", Role: profile.RolePlayer, XPTotal: 120, Championships: []string{"c1", "c2"}}
	globalAdmin = &profile.Profile{ID: "a1", Name: "Root", Role: profile.RoleAdmin, Admin: true}
)

func TestLoad_PlaceholdersHaveNoPayload(t *testing.T) {
	_, client := newFakeAPI(t)
	l := NewLoader(client, sessions.NewMemoryMarkers(), nil)
	for _, v := range []gate.View{gate.ViewLogin, gate.ViewAuthenticating, gate.ViewFinishingRegistration} {
		data, err := l.Load(context.Background(), Caller{}, v, Params{})
		require.NoError(t, err)
		assert.Nil(t, data)
	}
}

func TestLoad_RefusesViewsTheProfileCannotSee(t *testing.T) {
	_, client := newFakeAPI(t)
	l := NewLoader(client, sessions.NewMemoryMarkers(), nil)
	_, err := l.Load(context.Background(), caller(player), gate.ViewAdmin, Params{})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = l.Load(context.Background(), caller(player), gate.ViewMissions, Params{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestLoad_DashboardPerRole(t *testing.T) {
	api, client := newFakeAPI(t)
	api.on("GET /api/contributions/total", `{"total":350.5,"quantidade":7}`)
	l := NewLoader(client, sessions.NewMemoryMarkers(), nil)

	data, err := l.Load(context.Background(), caller(player), gate.ViewDashboard, Params{})
	require.NoError(t, err)
	d := data.(*Dashboard)
	assert.Equal(t, "Campeonatos", d.Stat.Label)
	assert.Equal(t, float64(2), d.Stat.Value)
	assert.Nil(t, d.Contributions)
	assert.Equal(t, 0, api.count("GET /api/contributions/total"))

	data, err = l.Load(context.Background(), caller(fan), gate.ViewDashboard, Params{})
	require.NoError(t, err)
	d = data.(*Dashboard)
	assert.Equal(t, "Contribuições", d.Stat.Label)
	require.NotNil(t, d.Contributions)
	assert.Equal(t, 350.5, d.Contributions.Total)
}

func TestLoad_FanDashboardSurvivesMissingTotals(t *testing.T) {
	api, client := newFakeAPI(t)
	api.fail("GET /api/contributions/total", http.StatusInternalServerError, "falhou")
	l := NewLoader(client, sessions.NewMemoryMarkers(), nil)

	data, err := l.Load(context.Background(), caller(fan), gate.ViewDashboard, Params{})
	require.NoError(t, err)
	assert.Nil(t, data.(*Dashboard).Contributions)
}

func TestLoad_ChampionshipsSortsParticipants(t *testing.T) {
	api, client := newFakeAPI(t)
	api.on("GET /api/organizacoes", `[{"id":"o1","nome":"Arena"},{"id":"o2","nome":"Liga"}]`)
	api.on("GET /api/organizacoes/o2/championships", `[{"id":"c1","nome":"Copa","participantes":[
		{"jogadorId":"p3","posicao":3},{"jogadorId":"p1","posicao":1},{"jogadorId":"p2","posicao":2}]}]`)
	l := NewLoader(client, sessions.NewMemoryMarkers(), nil)

	data, err := l.Load(context.Background(), caller(player), gate.ViewChampionships, Params{})
	require.NoError(t, err)
	c := data.(*Championships)
	assert.Len(t, c.Organizations, 2)
	assert.Nil(t, c.Selected)
	assert.Empty(t, c.Championships)

	data, err = l.Load(context.Background(), caller(player), gate.ViewChampionships, Params{Org: "o2"})
	require.NoError(t, err)
	c = data.(*Championships)
	require.NotNil(t, c.Selected)
	assert.Equal(t, "Liga", c.Selected.Name)
	require.Len(t, c.Championships, 1)
	var order []int
	for _, p := range c.Championships[0].Participants {
		order = append(order, p.Position)
	}
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestLoad_RifaSortedAndUsersForAdminsOnly(t *testing.T) {
	api, client := newFakeAPI(t)
	api.on("GET /api/rifa/atual", `{"nome":"Rifa","participantes":[{"nome":"B","numero":2},{"nome":"A","numero":1}]}`)
	api.on("GET /api/users/all", `[{"id":"u1","nome":"Ana"}]`)
	l := NewLoader(client, sessions.NewMemoryMarkers(), nil)

	data, err := l.Load(context.Background(), caller(player), gate.ViewRifa, Params{})
	require.NoError(t, err)
	r := data.(*Rifa)
	assert.Equal(t, 1, r.Raffle.Participants[0].Number)
	assert.Equal(t, 2, r.Raffle.Participants[1].Number)
	assert.Nil(t, r.Users)
	assert.Equal(t, 0, api.count("GET /api/users/all"))

	data, err = l.Load(context.Background(), caller(globalAdmin), gate.ViewRifa, Params{})
	require.NoError(t, err)
	assert.Len(t, data.(*Rifa).Users, 1)
}

func TestLoad_Streamers(t *testing.T) {
	_, client := newFakeAPI(t)
	data, err := NewLoader(client, sessions.NewMemoryMarkers(), nil).Load(context.Background(), caller(fan), gate.ViewStreamers, Params{})
	require.NoError(t, err)
	assert.Len(t, data, 3)

	custom := []config.Streamer{{ID: "x", Name: "Local"}}
	data, err = NewLoader(client, sessions.NewMemoryMarkers(), custom).Load(context.Background(), caller(fan), gate.ViewStreamers, Params{})
	require.NoError(t, err)
	assert.Equal(t, custom, data)
}

func TestLoad_MissionsHidesCompletedAndShowsMarker(t *testing.T) {
	api, client := newFakeAPI(t)
	api.on("GET /api/missions", `[{"id":"m1","titulo":"Seguir"},{"id":"m2","titulo":"Curtir"},{"id":"m3","titulo":"Assistir"}]`)
	markers := sessions.NewMemoryMarkers()
	require.NoError(t, markers.Mark(context.Background(), "sid-1", missionMarker("m3"), time.Hour))
	l := NewLoader(client, markers, nil)

	data, err := l.Load(context.Background(), caller(fan), gate.ViewMissions, Params{})
	require.NoError(t, err)
	items := data.(*Missions).Missions
	require.Len(t, items, 2)
	assert.Equal(t, "m2", items[0].ID)
	assert.False(t, items[0].LinkOpened)
	assert.Equal(t, "m3", items[1].ID)
	assert.True(t, items[1].LinkOpened)
}

func TestLoad_AdminFetchesEverything(t *testing.T) {
	api, client := newFakeAPI(t)
	api.on("GET /api/admin/my-championships", `[{"id":"c1","nome":"Copa","xpTotal":1000}]`)
	api.on("GET /api/players", `[{"id":"p1","nome":"Ana"}]`)
	api.on("GET /api/organizacoes", `[{"id":"o1","nome":"Arena","xpBase":0}]`)
	api.on("GET /api/admin/ranking/thresholds", `{"faixas":[100,500,1000]}`)
	l := NewLoader(client, sessions.NewMemoryMarkers(), nil)

	data, err := l.Load(context.Background(), caller(globalAdmin), gate.ViewAdmin, Params{})
	require.NoError(t, err)
	a := data.(*Admin)
	assert.Len(t, a.Championships, 1)
	assert.Len(t, a.Players, 1)
	require.Len(t, a.Organizations, 1)
	assert.Equal(t, float64(backend.DefaultXPBase), a.Organizations[0].EffectiveXPBase())
	require.NotNil(t, a.Thresholds)
	assert.Equal(t, []float64{100, 500, 1000}, a.Thresholds.Levels)
	assert.Nil(t, a.Organization)
}

func TestLoad_AdminFailsWhenAnyPartFails(t *testing.T) {
	api, client := newFakeAPI(t)
	api.on("GET /api/admin/my-championships", `[]`)
	api.fail("GET /api/players", http.StatusForbidden, "Acesso negado")
	api.on("GET /api/organizacoes", `[]`)
	api.on("GET /api/admin/ranking/thresholds", `{"faixas":[]}`)
	l := NewLoader(client, sessions.NewMemoryMarkers(), nil)

	_, err := l.Load(context.Background(), caller(globalAdmin), gate.ViewAdmin, Params{})
	var ae *backend.APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Acesso negado", ae.Message)
}

func TestLoad_ProfileView(t *testing.T) {
	_, client := newFakeAPI(t)
	data, err := NewLoader(client, sessions.NewMemoryMarkers(), nil).Load(context.Background(), caller(player), gate.ViewProfile, Params{})
	require.NoError(t, err)
	assert.Equal(t, player, data)
}
