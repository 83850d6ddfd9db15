// Package backend is the client of the platform's REST API. Every call takes
// the request's context so work stops when the caller goes away.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/logger"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/metrics"
)

// ErrUnavailable wraps transport failures: the backend could not be reached
// or answered with something that is not the expected JSON.
var ErrUnavailable = errors.New("backend unavailable")

// GenericMessage is shown when a failure carries no message of its own.
const GenericMessage = "Não foi possível falar com o servidor. Tente novamente."

// APIError is a non-2xx answer. Message comes from the body's error field.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %d %s", e.Status, e.Message)
}

// Message returns the text to show for err.
func Message(err error) string {
	var ae *APIError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return GenericMessage
}

// TokenSource yields a bearer token for the signed-in user. It is asked once
// per request; tokens are never cached here.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client calls the REST backend. The zero token source makes anonymous calls;
// WithAuth returns a copy that authenticates.
type Client struct {
	base   string
	http   *http.Client
	tokens TokenSource
	log    *logger.Logger
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
		log:  logger.Named("backend"),
	}
}

// WithAuth returns a client that attaches a bearer token from ts.
func (c *Client) WithAuth(ts TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

type call struct {
	name   string
	method string
	path   string
	auth   bool
	in     interface{}
	out    interface{}
}

func (c *Client) do(ctx context.Context, cl call) error {
	err := c.send(ctx, cl)
	outcome := "ok"
	var ae *APIError
	switch {
	case err == nil:
	case errors.As(err, &ae):
		outcome = "error"
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	default:
		outcome = "unavailable"
	}
	metrics.BackendRequests.WithLabelValues(cl.name, outcome).Inc()
	return err
}

func (c *Client) send(ctx context.Context, cl call) error {
	var body io.Reader
	if cl.in != nil {
		b, err := json.Marshal(cl.in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", cl.name, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, c.base+cl.path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", cl.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.auth {
		if c.tokens == nil {
			return fmt.Errorf("%s: authenticated call without a token source", cl.name)
		}
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("%s: fetch token: %w", cl.name, err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warnf("%s %s failed: %v", cl.method, cl.path, err)
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, cl.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", ErrUnavailable, cl.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb struct {
			Error string `json:"error"`
		}
		if jerr := json.Unmarshal(raw, &eb); jerr != nil {
			c.log.Warnf("%s %s: status %d with non-JSON body", cl.method, cl.path, resp.StatusCode)
			return fmt.Errorf("%w: %s: status %d", ErrUnavailable, cl.name, resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: eb.Error}
	}

	if cl.out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, cl.out); err != nil {
		return fmt.Errorf("%w: %s: decode body: %v", ErrUnavailable, cl.name, err)
	}
	return nil
}

func esc(s string) string { return url.PathEscape(s) }

// Register creates the profile record of a freshly created account.
func (c *Client) Register(ctx context.Context, r Registration) error {
	return c.do(ctx, call{name: "register", method: http.MethodPost, path: "/api/users/register", in: r})
}

func (c *Client) UpdateProfile(ctx context.Context, u ProfileUpdate) (Ack, error) {
	var ack Ack
	err := c.do(ctx, call{name: "update_profile", method: http.MethodPut, path: "/api/users/profile", auth: true, in: u, out: &ack})
	return ack, err
}

func (c *Client) ListUsers(ctx context.Context) ([]UserSummary, error) {
	var out []UserSummary
	err := c.do(ctx, call{name: "list_users", method: http.MethodGet, path: "/api/users/all", auth: true, out: &out})
	return out, err
}

func (c *Client) ListPlayers(ctx context.Context) ([]UserSummary, error) {
	var out []UserSummary
	err := c.do(ctx, call{name: "list_players", method: http.MethodGet, path: "/api/players", auth: true, out: &out})
	return out, err
}

func (c *Client) ListOrganizations(ctx context.Context) ([]Organization, error) {
	var out []Organization
	err := c.do(ctx, call{name: "list_organizations", method: http.MethodGet, path: "/api/organizacoes", out: &out})
	return out, err
}

func (c *Client) GetOrganization(ctx context.Context, id string) (Organization, error) {
	var out Organization
	err := c.do(ctx, call{name: "get_organization", method: http.MethodGet, path: "/api/organizacoes/" + esc(id), out: &out})
	return out, err
}

func (c *Client) CreateOrganization(ctx context.Context, o Organization) (Ack, error) {
	var ack Ack
	err := c.do(ctx, call{name: "create_organization", method: http.MethodPost, path: "/api/organizacoes", auth: true, in: o, out: &ack})
	return ack, err
}

func (c *Client) UpdateOrganization(ctx context.Context, id string, o Organization) (Ack, error) {
	var ack Ack
	err := c.do(ctx, call{name: "update_organization", method: http.MethodPut, path: "/api/organizacoes/" + esc(id), auth: true, in: o, out: &ack})
	return ack, err
}

func (c *Client) OrganizationChampionships(ctx context.Context, orgID string) ([]Championship, error) {
	var out []Championship
	err := c.do(ctx, call{name: "organization_championships", method: http.MethodGet, path: "/api/organizacoes/" + esc(orgID) + "/championships", out: &out})
	return out, err
}

func (c *Client) CreateChampionship(ctx context.Context, nc NewChampionship) (Ack, error) {
	var ack Ack
	err := c.do(ctx, call{name: "create_championship", method: http.MethodPost, path: "/api/championships", auth: true, in: nc, out: &ack})
	return ack, err
}

// MyChampionships lists the championships the caller may finalize.
func (c *Client) MyChampionships(ctx context.Context) ([]Championship, error) {
	var out []Championship
	err := c.do(ctx, call{name: "my_championships", method: http.MethodGet, path: "/api/admin/my-championships", auth: true, out: &out})
	return out, err
}

func (c *Client) FinalizeChampionship(ctx context.Context, id string, f Finalization) (Ack, error) {
	var ack Ack
	err := c.do(ctx, call{name: "finalize", method: http.MethodPost, path: "/api/admin/championships/" + esc(id) + "/finalize", auth: true, in: f, out: &ack})
	return ack, err
}

func (c *Client) FinalizeChampionshipCustom(ctx context.Context, id string, f CustomFinalization) (Ack, error) {
	var ack Ack
	err := c.do(ctx, call{name: "finalize_custom", method: http.MethodPost, path: "/api/admin/championships/" + esc(id) + "/finalize-custom", auth: true, in: f, out: &ack})
	return ack, err
}

func (c *Client) CurrentRaffle(ctx context.Context) (Raffle, error) {
	var out Raffle
	err := c.do(ctx, call{name: "current_raffle", method: http.MethodGet, path: "/api/rifa/atual", out: &out})
	return out, err
}

// AddRaffleEntry gives playerID the next raffle number.
func (c *Client) AddRaffleEntry(ctx context.Context, playerID string) (Ack, error) {
	var ack Ack
	in := map[string]string{"jogadorId": playerID}
	err := c.do(ctx, call{name: "add_raffle_entry", method: http.MethodPost, path: "/api/rifa/add-participante", auth: true, in: in, out: &ack})
	return ack, err
}

func (c *Client) ResetRaffle(ctx context.Context) (Ack, error) {
	var ack Ack
	err := c.do(ctx, call{name: "reset_raffle", method: http.MethodDelete, path: "/api/rifa/reset", auth: true, out: &ack})
	return ack, err
}

func (c *Client) ListMissions(ctx context.Context) ([]Mission, error) {
	var out []Mission
	err := c.do(ctx, call{name: "list_missions", method: http.MethodGet, path: "/api/missions", out: &out})
	return out, err
}

func (c *Client) CompleteMission(ctx context.Context, missionID string) (Ack, error) {
	var ack Ack
	in := map[string]string{"missionId": missionID}
	err := c.do(ctx, call{name: "complete_mission", method: http.MethodPost, path: "/api/missions/complete", auth: true, in: in, out: &ack})
	return ack, err
}

func (c *Client) Contribute(ctx context.Context, amount float64) (Ack, error) {
	var ack Ack
	in := map[string]float64{"valor": amount}
	err := c.do(ctx, call{name: "contribute", method: http.MethodPost, path: "/api/contributions", auth: true, in: in, out: &ack})
	return ack, err
}

func (c *Client) ContributionTotals(ctx context.Context) (ContributionTotals, error) {
	var out ContributionTotals
	err := c.do(ctx, call{name: "contribution_totals", method: http.MethodGet, path: "/api/contributions/total", out: &out})
	return out, err
}

func (c *Client) RegisterDonation(ctx context.Context, d Donation) (Ack, error) {
	var ack Ack
	err := c.do(ctx, call{name: "register_donation", method: http.MethodPost, path: "/api/donations", auth: true, in: d, out: &ack})
	return ack, err
}

func (c *Client) SendSupportTicket(ctx context.Context, t SupportTicket) (Ack, error) {
	var ack Ack
	err := c.do(ctx, call{name: "support_ticket", method: http.MethodPost, path: "/api/support/send-ticket", auth: true, in: t, out: &ack})
	return ack, err
}

func (c *Client) Ranking(ctx context.Context) (Ranking, error) {
	var out Ranking
	err := c.do(ctx, call{name: "ranking", method: http.MethodGet, path: "/api/ranking", out: &out})
	return out, err
}

func (c *Client) RankingThresholds(ctx context.Context) (Thresholds, error) {
	var out Thresholds
	err := c.do(ctx, call{name: "ranking_thresholds", method: http.MethodGet, path: "/api/admin/ranking/thresholds", auth: true, out: &out})
	return out, err
}

func (c *Client) SetRankingThresholds(ctx context.Context, t Thresholds) (Ack, error) {
	var ack Ack
	err := c.do(ctx, call{name: "set_ranking_thresholds", method: http.MethodPut, path: "/api/admin/ranking/thresholds", auth: true, in: t, out: &ack})
	return ack, err
}

// ResetRanking zeroes every user's XP.
func (c *Client) ResetRanking(ctx context.Context) (Ack, error) {
	var ack Ack
	err := c.do(ctx, call{name: "reset_ranking", method: http.MethodPost, path: "/api/admin/ranking/reset", auth: true, out: &ack})
	return ack, err
}
