// Package gate decides which view a session may see. Route resolution, the
// navigation menu and action guards all read the same permission table.
package gate

import (
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/profile"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/session"
)

// View is a screen identifier as used on the wire.
type View string

const (
	ViewLogin                 View = "login"
	ViewAuthenticating        View = "authenticating"
	ViewFinishingRegistration View = "finishing-registration"
	ViewDashboard             View = "dashboard"
	ViewRanking               View = "ranking"
	ViewChampionships         View = "championships"
	ViewRifa                  View = "rifa"
	ViewStreamers             View = "streamers"
	ViewMissions              View = "missões"
	ViewAdmin                 View = "admin"
	ViewProfile               View = "profile"
)

// Views lists every view Resolve can return.
func Views() []View {
	return []View{
		ViewLogin, ViewAuthenticating, ViewFinishingRegistration,
		ViewDashboard, ViewRanking, ViewChampionships, ViewRifa,
		ViewStreamers, ViewMissions, ViewAdmin, ViewProfile,
	}
}

// ParseView maps a requested name to a View. Unknown names are returned as
// is; Resolve treats them as forbidden.
func ParseView(s string) View {
	if s == "missoes" {
		return ViewMissions
	}
	return View(s)
}

// Known reports whether v is one of the defined views.
func (v View) Known() bool {
	for _, k := range Views() {
		if k == v {
			return true
		}
	}
	return false
}

// rule grants a view to a set of (role, admin flag) pairs.
type rule struct {
	view  View
	label string
	allow func(role profile.Role, admin bool) bool
}

func anyRole(profile.Role, bool) bool { return true }

func roleIn(roles ...profile.Role) func(profile.Role, bool) bool {
	return func(r profile.Role, _ bool) bool {
		for _, x := range roles {
			if r == x {
				return true
			}
		}
		return false
	}
}

// permissions is the single permission table. Its order is the menu order.
var permissions = []rule{
	{ViewDashboard, "Dashboard", anyRole},
	{ViewChampionships, "Organizações", anyRole},
	{ViewStreamers, "Streamers", roleIn(profile.RoleFan)},
	{ViewMissions, "Missões", roleIn(profile.RoleFan)},
	{ViewRanking, "Ranking", anyRole},
	{ViewRifa, "Rifa", anyRole},
	{ViewProfile, "Perfil", roleIn(profile.RolePlayer, profile.RoleFan, profile.RoleOrganizer)},
	{ViewAdmin, "Admin", func(r profile.Role, admin bool) bool { return r == profile.RoleAdmin && admin }},
}

func lookup(v View) (rule, bool) {
	for _, r := range permissions {
		if r.view == v {
			return r, true
		}
	}
	return rule{}, false
}

// Allowed reports whether a signed-in user with profile p may open v.
// Views outside the permission table are never allowed.
func Allowed(p *profile.Profile, v View) bool {
	if p == nil {
		return false
	}
	r, ok := lookup(v)
	if !ok {
		return false
	}
	return r.allow(p.Role, p.Admin)
}

// Resolve returns the view to render for a requested view. It never fails:
// anything not permitted is replaced by the dashboard.
func Resolve(s session.Snapshot, requested View) View {
	switch {
	case s.Resolving:
		return ViewAuthenticating
	case s.Identity == nil:
		return ViewLogin
	case s.Profile == nil:
		return ViewFinishingRegistration
	}
	if Allowed(s.Profile, requested) {
		return requested
	}
	return ViewDashboard
}

// NavItem is one navigation link.
type NavItem struct {
	View  View   `json:"view"`
	Label string `json:"label"`
}

var loginItem = NavItem{View: ViewLogin, Label: "Login / Registro"}

// Menu lists the links the session may follow. Sessions without a profile
// get the single login entry.
func Menu(s session.Snapshot) []NavItem {
	if s.Resolving || s.Identity == nil || s.Profile == nil {
		return []NavItem{loginItem}
	}
	var items []NavItem
	for _, r := range permissions {
		if r.allow(s.Profile.Role, s.Profile.Admin) {
			items = append(items, NavItem{View: r.view, Label: r.label})
		}
	}
	return items
}
