// Package views builds the payload of each screen the gate lets a session
// see, and runs the forms those screens post.
package views

import (
	"context"
	"errors"
	"sort"

	"github.com/fgcbrasil/fgcbrasil/gateway/internal/backend"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/config"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/gate"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/profile"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/session"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/sessions"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// ErrForbidden is returned when the caller's profile does not grant the view
// that owns the requested data or action.
var ErrForbidden = errors.New("views: forbidden")

// Caller is the browser session a view or action runs for.
type Caller struct {
	SessionID string
	Snapshot  session.Snapshot
	// Tokens authenticates backend calls; nil for anonymous callers.
	Tokens backend.TokenSource
}

func (c Caller) profile() *profile.Profile { return c.Snapshot.Profile }

// Params are the optional query parameters of a view.
type Params struct {
	Org string
}

type Stat struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type Dashboard struct {
	Name    string       `json:"nome"`
	Role    profile.Role `json:"tipo"`
	XPTotal float64      `json:"xpTotal"`
	Stat    Stat         `json:"stat"`
	// Contributions is only filled for fans.
	Contributions *backend.ContributionTotals `json:"contribuicoesTotais,omitempty"`
}

type Championships struct {
	Organizations []backend.Organization `json:"organizacoes"`
	Selected      *backend.Organization  `json:"organizacao,omitempty"`
	Championships []backend.Championship `json:"campeonatos,omitempty"`
}

type Rifa struct {
	Raffle backend.Raffle `json:"rifa"`
	// Users is the buyer list of the add-entry form; admins only.
	Users []backend.UserSummary `json:"usuarios,omitempty"`
}

type MissionItem struct {
	backend.Mission
	LinkOpened bool `json:"linkAberto"`
}

type Missions struct {
	Missions []MissionItem `json:"missoes"`
}

type Admin struct {
	Championships []backend.Championship `json:"campeonatos"`
	Players       []backend.UserSummary  `json:"jogadores"`
	Organizations []backend.Organization `json:"organizacoes,omitempty"`
	Organization  *backend.Organization  `json:"organizacao,omitempty"`
	Thresholds    *backend.Thresholds    `json:"faixas,omitempty"`
}

// Loader fetches view payloads from the backend.
type Loader struct {
	client    *backend.Client
	markers   sessions.MarkerStore
	streamers []config.Streamer
	log       *logger.Logger
}

func NewLoader(client *backend.Client, markers sessions.MarkerStore, streamers []config.Streamer) *Loader {
	if len(streamers) == 0 {
		streamers = DefaultStreamers()
	}
	return &Loader{
		client:    client,
		markers:   markers,
		streamers: streamers,
		log:       logger.Named("views"),
	}
}

func (l *Loader) api(c Caller) *backend.Client {
	if c.Tokens == nil {
		return l.client
	}
	return l.client.WithAuth(c.Tokens)
}

// Load returns the payload of v, which must already be the gate's decision
// for c. Placeholder views (login, authenticating, finishing-registration)
// have no payload.
func (l *Loader) Load(ctx context.Context, c Caller, v gate.View, p Params) (interface{}, error) {
	switch v {
	case gate.ViewLogin, gate.ViewAuthenticating, gate.ViewFinishingRegistration:
		return nil, nil
	}
	if !gate.Allowed(c.profile(), v) {
		return nil, ErrForbidden
	}

	switch v {
	case gate.ViewDashboard:
		return l.dashboard(ctx, c)
	case gate.ViewRanking:
		return l.api(c).Ranking(ctx)
	case gate.ViewChampionships:
		return l.championships(ctx, c, p.Org)
	case gate.ViewRifa:
		return l.rifa(ctx, c)
	case gate.ViewStreamers:
		return l.streamers, nil
	case gate.ViewMissions:
		return l.missions(ctx, c)
	case gate.ViewAdmin:
		return l.admin(ctx, c)
	case gate.ViewProfile:
		return c.profile(), nil
	}
	return nil, ErrForbidden
}

func (l *Loader) dashboard(ctx context.Context, c Caller) (*Dashboard, error) {
	p := c.profile()
	d := &Dashboard{Name: p.Name, Role: p.Role, XPTotal: p.XPTotal}
	if p.Role == profile.RolePlayer {
		d.Stat = Stat{Label: "Campeonatos", Value: float64(len(p.Championships))}
	} else {
		d.Stat = Stat{Label: "Contribuições", Value: float64(len(p.Contributions))}
	}
	if p.Role == profile.RoleFan {
		totals, err := l.api(c).ContributionTotals(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// the rest of the dashboard is still useful without the totals
			l.log.Warnf("contribution totals for %s: %v", p.ID, err)
		} else {
			d.Contributions = &totals
		}
	}
	return d, nil
}

func (l *Loader) championships(ctx context.Context, c Caller, orgID string) (*Championships, error) {
	api := l.api(c)
	orgs, err := api.ListOrganizations(ctx)
	if err != nil {
		return nil, err
	}
	out := &Championships{Organizations: orgs}
	if orgID == "" {
		return out, nil
	}

	for i := range orgs {
		if orgs[i].ID == orgID {
			out.Selected = &orgs[i]
			break
		}
	}
	if out.Selected == nil {
		org, err := api.GetOrganization(ctx, orgID)
		if err != nil {
			return nil, err
		}
		out.Selected = &org
	}

	champs, err := api.OrganizationChampionships(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for i := range champs {
		sort.SliceStable(champs[i].Participants, func(a, b int) bool {
			return champs[i].Participants[a].Position < champs[i].Participants[b].Position
		})
	}
	out.Championships = champs
	return out, nil
}

func (l *Loader) rifa(ctx context.Context, c Caller) (*Rifa, error) {
	api := l.api(c)
	raffle, err := api.CurrentRaffle(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(raffle.Participants, func(a, b int) bool {
		return raffle.Participants[a].Number < raffle.Participants[b].Number
	})
	out := &Rifa{Raffle: raffle}

	if c.profile().GlobalAdmin() {
		users, err := api.ListUsers(ctx)
		if err != nil {
			l.log.Warnf("raffle buyer list: %v", err)
		} else {
			out.Users = users
		}
	}
	return out, nil
}

func (l *Loader) missions(ctx context.Context, c Caller) (*Missions, error) {
	all, err := l.api(c).ListMissions(ctx)
	if err != nil {
		return nil, err
	}
	p := c.profile()
	out := &Missions{Missions: []MissionItem{}}
	for _, m := range all {
		if p.HasCompletedMission(m.ID) {
			continue
		}
		opened, err := l.markers.Marked(ctx, c.SessionID, missionMarker(m.ID))
		if err != nil {
			l.log.Warnf("mission marker %s: %v", m.ID, err)
		}
		out.Missions = append(out.Missions, MissionItem{Mission: m, LinkOpened: opened})
	}
	return out, nil
}

// admin loads the data of every admin form concurrently.
func (l *Loader) admin(ctx context.Context, c Caller) (*Admin, error) {
	api := l.api(c)
	p := c.profile()
	out := &Admin{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		champs, err := api.MyChampionships(gctx)
		out.Championships = champs
		return err
	})
	g.Go(func() error {
		players, err := api.ListPlayers(gctx)
		out.Players = players
		return err
	})
	switch {
	case formGlobalAdmin(p):
		g.Go(func() error {
			orgs, err := api.ListOrganizations(gctx)
			out.Organizations = orgs
			return err
		})
		g.Go(func() error {
			t, err := api.RankingThresholds(gctx)
			if err != nil {
				return err
			}
			out.Thresholds = &t
			return nil
		})
	case p.Role == profile.RoleOrganizer && p.OrganizationID != "":
		g.Go(func() error {
			org, err := api.GetOrganization(gctx, p.OrganizationID)
			if err != nil {
				return err
			}
			out.Organization = &org
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// formGlobalAdmin is the admin forms' notion of a global admin: the flag set
// on anything but an organizer account.
func formGlobalAdmin(p *profile.Profile) bool {
	return p != nil && p.Admin && p.Role != profile.RoleOrganizer
}

func missionMarker(id string) string { return "mission:" + id }
