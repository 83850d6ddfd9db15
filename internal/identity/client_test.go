package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// fakeToolkit is a minimal identity-toolkit server.
type fakeToolkit struct {
	t        *testing.T
	mu       sync.Mutex
	accounts map[string]string // email -> password
	uids     map[string]string // email -> uid
	refresh  map[string]string // refresh token -> email
	ttl      time.Duration
	refreshN int
}

func newFakeToolkit(t *testing.T) (*fakeToolkit, *httptest.Server) {
	f := &fakeToolkit{
		t:        t,
		accounts: map[string]string{"p1@fgc.br": "segredo1"},
		uids:     map[string]string{"p1@fgc.br": "uid-1"},
		refresh:  map[string]string{},
		ttl:      time.Hour,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/accounts:signInWithPassword", f.signIn)
	mux.HandleFunc("/v1/accounts:signUp", f.signUp)
	mux.HandleFunc("/v1/token", f.token)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeToolkit) fail(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": map[string]interface{}{"code": 400, "message": msg}})
}

func (f *fakeToolkit) issue(email string) (string, string) {
	idTok := mintToken(f.t, jwt.MapClaims{
		"user_id": f.uids[email],
		"email":   email,
		"exp":     time.Now().Add(f.ttl).Unix(),
	})
	rt := "rt-" + f.uids[email] + "-" + time.Now().Format("150405.000000000")
	f.refresh[rt] = email
	return idTok, rt
}

func (f *fakeToolkit) signIn(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("key") != "test-key" {
		f.fail(w, "API_KEY_INVALID")
		return
	}
	var req passwordRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	defer f.mu.Unlock()
	pw, ok := f.accounts[req.Email]
	if !ok {
		f.fail(w, "EMAIL_NOT_FOUND")
		return
	}
	if pw != req.Password {
		f.fail(w, "INVALID_PASSWORD")
		return
	}
	idTok, rt := f.issue(req.Email)
	_ = json.NewEncoder(w).Encode(passwordResponse{LocalID: f.uids[req.Email], Email: req.Email, IDToken: idTok, RefreshToken: rt, ExpiresIn: "3600"})
}

func (f *fakeToolkit) signUp(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[req.Email]; ok {
		f.fail(w, "EMAIL_EXISTS")
		return
	}
	if len(req.Password) < 6 {
		f.fail(w, "WEAK_PASSWORD : Password should be at least 6 characters")
		return
	}
	f.accounts[req.Email] = req.Password
	f.uids[req.Email] = "uid-" + req.Email
	idTok, rt := f.issue(req.Email)
	_ = json.NewEncoder(w).Encode(passwordResponse{LocalID: f.uids[req.Email], Email: req.Email, IDToken: idTok, RefreshToken: rt, ExpiresIn: "3600"})
}

func (f *fakeToolkit) token(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshN++
	email, ok := f.refresh[r.PostForm.Get("refresh_token")]
	if r.PostForm.Get("grant_type") != "refresh_token" || !ok {
		f.fail(w, "INVALID_REFRESH_TOKEN")
		return
	}
	idTok, rt := f.issue(email)
	_ = json.NewEncoder(w).Encode(refreshResponse{IDToken: idTok, RefreshToken: rt, ExpiresIn: "3600", UserID: f.uids[email]})
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(ClientConfig{
		APIKey:      "test-key",
		IdentityURL: srv.URL,
		TokenURL:    srv.URL,
		Verifier:    NewInsecureVerifier(),
	})
}

type identityRecorder struct {
	mu   sync.Mutex
	seen []*Identity
}

func (r *identityRecorder) record(id *Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, id)
}

func (r *identityRecorder) all() []*Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Identity(nil), r.seen...)
}

func TestClient_SignInNotifiesSubscribers(t *testing.T) {
	_, srv := newFakeToolkit(t)
	c := newTestClient(srv)

	rec := &identityRecorder{}
	unsub := c.Subscribe(rec.record)
	defer unsub()

	id, err := c.SignIn(context.Background(), "p1@fgc.br", "segredo1")
	require.NoError(t, err)
	require.Equal(t, "uid-1", id.UID)
	require.Equal(t, "p1@fgc.br", id.Email)
	require.NotEmpty(t, c.RefreshToken())

	seen := rec.all()
	require.Len(t, seen, 2)
	require.Nil(t, seen[0], "subscribe reports the signed-out state first")
	require.Equal(t, "uid-1", seen[1].UID)

	require.NoError(t, c.SignOut(context.Background()))
	seen = rec.all()
	require.Len(t, seen, 3)
	require.Nil(t, seen[2])
	require.Nil(t, c.Current())
	require.Empty(t, c.RefreshToken())
}

func TestClient_ProviderErrorsCarryCodes(t *testing.T) {
	_, srv := newFakeToolkit(t)
	c := newTestClient(srv)
	ctx := context.Background()

	_, err := c.SignIn(ctx, "nobody@fgc.br", "x")
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, CodeUserNotFound, ae.Code)
	require.Equal(t, http.StatusBadRequest, ae.Status)

	_, err = c.SignIn(ctx, "p1@fgc.br", "errada")
	require.ErrorAs(t, err, &ae)
	require.Equal(t, CodeWrongPassword, ae.Code)

	_, err = c.CreateAccount(ctx, "p1@fgc.br", "segredo1")
	require.ErrorAs(t, err, &ae)
	require.Equal(t, CodeEmailInUse, ae.Code)

	_, err = c.CreateAccount(ctx, "novo@fgc.br", "123")
	require.ErrorAs(t, err, &ae)
	require.Equal(t, CodeWeakPassword, ae.Code)

	require.Nil(t, c.Current(), "failed attempts leave the client signed out")
}

func TestClient_CreateAccountSignsIn(t *testing.T) {
	_, srv := newFakeToolkit(t)
	c := newTestClient(srv)

	id, err := c.CreateAccount(context.Background(), "novo@fgc.br", "segredo2")
	require.NoError(t, err)
	require.Equal(t, "uid-novo@fgc.br", id.UID)
	require.Equal(t, id.UID, c.Current().UID)
}

func TestClient_TokenRefreshesInsideSkew(t *testing.T) {
	f, srv := newFakeToolkit(t)
	c := newTestClient(srv)
	ctx := context.Background()

	_, err := c.SignIn(ctx, "p1@fgc.br", "segredo1")
	require.NoError(t, err)

	first, err := c.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, f.refreshN, "fresh token is served from cache")

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	second, err := c.Token(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, second)
	require.Equal(t, 1, f.refreshN)
	_ = first
	require.Equal(t, "p1@fgc.br", c.Current().Email, "email survives a refresh")
}

func TestClient_RejectedRefreshSignsOut(t *testing.T) {
	f, srv := newFakeToolkit(t)
	c := newTestClient(srv)
	ctx := context.Background()

	_, err := c.SignIn(ctx, "p1@fgc.br", "segredo1")
	require.NoError(t, err)

	rec := &identityRecorder{}
	c.Subscribe(rec.record)

	f.mu.Lock()
	f.refresh = map[string]string{}
	f.mu.Unlock()
	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = c.Token(ctx)
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, CodeTokenExpired, ae.Code)
	require.Nil(t, c.Current())

	seen := rec.all()
	require.Len(t, seen, 2)
	require.Nil(t, seen[1])

	_, err = c.Token(ctx)
	require.ErrorIs(t, err, ErrSignedOut)
}

func TestClient_Restore(t *testing.T) {
	_, srv := newFakeToolkit(t)
	first := newTestClient(srv)
	ctx := context.Background()

	_, err := first.SignIn(ctx, "p1@fgc.br", "segredo1")
	require.NoError(t, err)

	second := newTestClient(srv)
	id, err := second.Restore(ctx, first.RefreshToken())
	require.NoError(t, err)
	require.Equal(t, "uid-1", id.UID)
	require.Equal(t, "p1@fgc.br", id.Email, "email comes from the verified claims")

	_, err = newTestClient(srv).Restore(ctx, "unknown")
	require.Error(t, err)
}

func TestClient_UnsubscribeIsIdempotent(t *testing.T) {
	_, srv := newFakeToolkit(t)
	c := newTestClient(srv)

	rec := &identityRecorder{}
	unsub := c.Subscribe(rec.record)
	unsub()
	unsub()

	_, err := c.SignIn(context.Background(), "p1@fgc.br", "segredo1")
	require.NoError(t, err)
	require.Len(t, rec.all(), 1)
}

func TestClient_NotificationsFollowStateChanges(t *testing.T) {
	_, srv := newFakeToolkit(t)
	c := newTestClient(srv)
	ctx := context.Background()
	_, err := c.SignIn(ctx, "p1@fgc.br", "segredo1")
	require.NoError(t, err)

	// hold the sign-out notification until a sign-in has raced it
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	rec := &identityRecorder{}
	c.Subscribe(func(id *Identity) {
		if id == nil {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		rec.record(id)
	})

	outDone := make(chan struct{})
	go func() {
		_ = c.SignOut(ctx)
		close(outDone)
	}()
	<-entered

	inDone := make(chan error, 1)
	go func() {
		_, err := c.SignIn(ctx, "p1@fgc.br", "segredo1")
		inDone <- err
	}()
	require.Never(t, func() bool { return len(inDone) > 0 }, 100*time.Millisecond, 10*time.Millisecond,
		"sign-in must wait for the sign-out listeners")

	close(release)
	<-outDone
	require.NoError(t, <-inDone)

	seen := rec.all()
	require.Len(t, seen, 3)
	require.Equal(t, "uid-1", seen[0].UID)
	require.Nil(t, seen[1])
	require.Equal(t, "uid-1", seen[2].UID)
	require.Equal(t, c.Current(), seen[len(seen)-1])
}

func TestRevoked(t *testing.T) {
	require.True(t, Revoked(fmt.Errorf("restore: %w", &AuthError{Code: CodeTokenExpired})))
	require.True(t, Revoked(&AuthError{Code: CodeUserDisabled}))
	require.True(t, Revoked(&AuthError{Code: CodeUserNotFound}))
	require.False(t, Revoked(&AuthError{Code: CodeInternal, Status: 503}))
	require.False(t, Revoked(&AuthError{Code: CodeTooManyRequests}))
	require.False(t, Revoked(errors.New("dial tcp: connection refused")))
	require.False(t, Revoked(nil))
}

func TestCodeFor(t *testing.T) {
	require.Equal(t, CodeWeakPassword, codeFor("WEAK_PASSWORD : Password should be at least 6 characters"))
	require.Equal(t, CodeInvalidCredential, codeFor("INVALID_LOGIN_CREDENTIALS"))
	require.Equal(t, CodeInternal, codeFor("SOMETHING_NEW"))
}
