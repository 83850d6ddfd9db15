package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/logger"
)

// ClientConfig configures a Client. IdentityURL and TokenURL are the bases of
// the identity-toolkit and secure-token APIs.
type ClientConfig struct {
	APIKey      string
	IdentityURL string
	TokenURL    string
	RefreshSkew time.Duration
	HTTPClient  *http.Client
	// Verifier checks ID tokens after sign-in. Nil skips verification and
	// trusts the provider response.
	Verifier TokenVerifier
}

// Client is an identity-toolkit REST client holding the sign-in state of
// exactly one browser session. Create one per session.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	log  *logger.Logger
	now  func() time.Time

	// notifyMu is held from a state change until its listeners have run,
	// so listeners see changes in the order they were made.
	notifyMu sync.Mutex

	mu        sync.Mutex
	cur       *credentials
	listeners map[uint64]func(*Identity)
	nextID    uint64
}

type credentials struct {
	identity     Identity
	idToken      string
	refreshToken string
	expiresAt    time.Time
}

var _ Provider = (*Client)(nil)

func NewClient(cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = time.Minute
	}
	return &Client{
		cfg:       cfg,
		http:      hc,
		log:       logger.Named("identity"),
		now:       time.Now,
		listeners: map[uint64]func(*Identity){},
	}
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type passwordResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type providerErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn authenticates with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	return c.passwordFlow(ctx, "accounts:signInWithPassword", email, password)
}

// CreateAccount registers a new account and signs it in.
func (c *Client) CreateAccount(ctx context.Context, email, password string) (*Identity, error) {
	return c.passwordFlow(ctx, "accounts:signUp", email, password)
}

func (c *Client) passwordFlow(ctx context.Context, method, email, password string) (*Identity, error) {
	endpoint := c.cfg.IdentityURL + "/v1/" + method + "?key=" + url.QueryEscape(c.cfg.APIKey)
	body, err := json.Marshal(passwordRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var pr passwordResponse
	if err := c.do(req, &pr); err != nil {
		return nil, err
	}
	creds := &credentials{
		identity:     Identity{UID: pr.LocalID, Email: pr.Email},
		idToken:      pr.IDToken,
		refreshToken: pr.RefreshToken,
		expiresAt:    tokenExpiry(pr.IDToken, pr.ExpiresIn, c.now()),
	}
	if err := c.verify(ctx, creds); err != nil {
		return nil, err
	}
	c.set(creds)
	c.log.Debugf("%s succeeded for uid=%s", method, creds.identity.UID)
	id := creds.identity
	return &id, nil
}

// Restore rehydrates a signed-in state from a persisted refresh token.
func (c *Client) Restore(ctx context.Context, refreshToken string) (*Identity, error) {
	creds, err := c.exchangeRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if err := c.verify(ctx, creds); err != nil {
		return nil, err
	}
	c.set(creds)
	id := creds.identity
	return &id, nil
}

// SignOut forgets the current identity and notifies listeners.
func (c *Client) SignOut(ctx context.Context) error {
	c.set(nil)
	return nil
}

// Current returns the signed-in identity or nil.
func (c *Client) Current() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return nil
	}
	id := c.cur.identity
	return &id
}

// RefreshToken returns the refresh token of the current identity, used to
// persist the browser session.
func (c *Client) RefreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return ""
	}
	return c.cur.refreshToken
}

// Subscribe reports the current identity to fn and then every change. fn
// must not sign in or out on this client.
func (c *Client) Subscribe(fn func(*Identity)) func() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	var current *Identity
	if c.cur != nil {
		cp := c.cur.identity
		current = &cp
	}
	c.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Token returns the cached ID token while it is outside the refresh skew and
// exchanges the refresh token otherwise. A rejected refresh signs the user out.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	cur := c.cur
	c.mu.Unlock()
	if cur == nil {
		return "", ErrSignedOut
	}
	if c.now().Add(c.cfg.RefreshSkew).Before(cur.expiresAt) {
		return cur.idToken, nil
	}

	fresh, err := c.exchangeRefresh(ctx, cur.refreshToken)
	if err != nil {
		if Revoked(err) {
			c.log.Warnf("refresh rejected for uid=%s: %v; signing out", cur.identity.UID, err)
			c.setIf(cur, nil)
		}
		return "", err
	}
	if fresh.identity.Email == "" {
		fresh.identity.Email = cur.identity.Email
	}
	// identity is unchanged by a refresh, so listeners are not notified
	c.mu.Lock()
	if c.cur == cur {
		c.cur = fresh
	}
	c.mu.Unlock()
	return fresh.idToken, nil
}

func (c *Client) exchangeRefresh(ctx context.Context, refreshToken string) (*credentials, error) {
	if refreshToken == "" {
		return nil, &AuthError{Code: CodeTokenExpired, Message: "MISSING_REFRESH_TOKEN"}
	}
	endpoint := c.cfg.TokenURL + "/v1/token?key=" + url.QueryEscape(c.cfg.APIKey)
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var rr refreshResponse
	if err := c.do(req, &rr); err != nil {
		return nil, err
	}
	return &credentials{
		identity:     Identity{UID: rr.UserID},
		idToken:      rr.IDToken,
		refreshToken: rr.RefreshToken,
		expiresAt:    tokenExpiry(rr.IDToken, rr.ExpiresIn, c.now()),
	}, nil
}

// verify checks the ID token and fills identity fields from its claims.
func (c *Client) verify(ctx context.Context, creds *credentials) error {
	if c.cfg.Verifier == nil {
		return nil
	}
	claims, err := verifyIdentity(ctx, c.cfg.Verifier, creds.idToken)
	if err != nil {
		return err
	}
	uid := claims.uid()
	if uid == "" {
		return fmt.Errorf("verify id token: no subject claim")
	}
	if creds.identity.UID != "" && creds.identity.UID != uid {
		return fmt.Errorf("verify id token: subject %q does not match account %q", uid, creds.identity.UID)
	}
	creds.identity.UID = uid
	if claims.Email != "" {
		creds.identity.Email = claims.Email
	}
	return nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity: request failed: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("identity: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var pe providerErrorBody
		if jerr := json.Unmarshal(b, &pe); jerr != nil || pe.Error.Message == "" {
			return &AuthError{Code: CodeInternal, Message: strings.TrimSpace(string(b)), Status: resp.StatusCode}
		}
		return &AuthError{Code: codeFor(pe.Error.Message), Message: pe.Error.Message, Status: resp.StatusCode}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("identity: decode response: %w", err)
	}
	return nil
}

// set replaces the credentials and notifies listeners when the identity changed.
func (c *Client) set(creds *credentials) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	prev := c.cur
	c.cur = creds
	fns := c.snapshotListeners()
	c.mu.Unlock()
	if sameIdentity(prev, creds) {
		return
	}
	notify(fns, creds)
}

// setIf replaces the credentials only if they are still expected.
func (c *Client) setIf(expected, creds *credentials) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	if c.cur != expected {
		c.mu.Unlock()
		return
	}
	c.cur = creds
	fns := c.snapshotListeners()
	c.mu.Unlock()
	notify(fns, creds)
}

func (c *Client) snapshotListeners() []func(*Identity) {
	fns := make([]func(*Identity), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(*Identity), creds *credentials) {
	for _, fn := range fns {
		if creds == nil {
			fn(nil)
			continue
		}
		id := creds.identity
		fn(&id)
	}
}

func sameIdentity(a, b *credentials) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.identity == b.identity
}
