package sessionsdk_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/dealerdesk/pkg/cryptox"
	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
	"github.com/aussiebroadwan/dealerdesk/pkg/sessionsdk"
	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore"
	"github.com/stretchr/testify/require"
)

const testIssuer = "dealerdesk-test"

// fakeIssuer is a scripted issuer and backend. Knobs are set before the
// first request.
type fakeIssuer struct {
	t      *testing.T
	srv    *httptest.Server
	signer *jwtx.EdDSASigner
	verify *jwtx.EdDSAVerifier

	// refreshTTL is the lifetime of tokens minted by /auth/refresh.
	refreshTTL time.Duration

	// refreshGate, when set, holds every refresh until it is closed.
	refreshGate chan struct{}

	failRefresh  atomic.Bool
	omitRefresh  atomic.Bool
	logoutStatus int

	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
	apiCalls     atomic.Int32
	generation   atomic.Int32

	mu            sync.Mutex
	movedTo       string
	issued        sessionsdk.Session
	refreshBodies []string
	logoutBodies  []string
	requestIDs    []string
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()

	f := &fakeIssuer{
		t:            t,
		signer:       newSigner(t, "issuer-key"),
		refreshTTL:   time.Hour,
		logoutStatus: http.StatusNoContent,
	}
	f.verify = f.signer.Verifier(testIssuer)

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+sessionsdk.PathLogin, f.handleLogin)
	mux.HandleFunc("POST "+sessionsdk.PathRegister, f.handleRegister)
	mux.HandleFunc("POST "+sessionsdk.PathRefresh, f.handleRefresh)
	mux.HandleFunc("POST "+sessionsdk.PathLogout, f.handleLogout)
	mux.HandleFunc("POST "+sessionsdk.PathChangePassword, f.authorized(f.handleChangePassword))
	mux.HandleFunc("POST "+sessionsdk.PathForgotPassword, f.handleForgotPassword)
	mux.HandleFunc("POST "+sessionsdk.PathResetPassword, f.handleResetPassword)
	mux.HandleFunc("GET /api/orders", f.authorized(f.handleOrders))
	mux.HandleFunc("POST /api/echo", f.authorized(f.handleEcho))
	mux.HandleFunc("GET /api/moved", f.authorized(f.handleMoved))
	mux.HandleFunc("GET /api/always-401", func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls.Add(1)
		writeMessage(w, http.StatusUnauthorized, "nope")
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func newSigner(t *testing.T, kid string) *jwtx.EdDSASigner {
	t.Helper()

	pemKey, err := cryptox.NewSigningKeyPEM()
	require.NoError(t, err)
	s, err := jwtx.NewSignerEdDSA(kid, pemKey)
	require.NoError(t, err)
	return s
}

// mint signs an access token for the issuer.
func (f *fakeIssuer) mint(username string, role jwtx.Role, perms []string, ttl time.Duration) string {
	return mintWith(f.t, f.signer, username, role, perms, ttl)
}

func mintWith(t *testing.T, s *jwtx.EdDSASigner, username string, role jwtx.Role, perms []string, ttl time.Duration) string {
	t.Helper()

	tok, err := s.Sign(jwtx.NewAccessClaims("id-"+username, username, role, perms, ttl, testIssuer, time.Now()))
	require.NoError(t, err)
	return tok
}

func (f *fakeIssuer) newClient(t *testing.T, mutate ...func(*sessionsdk.Config)) (*sessionsdk.Client, tokenstore.Store) {
	t.Helper()

	store := tokenstore.NewMemory()
	cfg := sessionsdk.Config{
		BaseURL: f.srv.URL,
		Store:   store,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	c, err := sessionsdk.NewClient(cfg)
	require.NoError(t, err)
	return c, cfg.Store
}

func (f *fakeIssuer) tokens(username string, role jwtx.Role, ttl time.Duration) sessionsdk.TokenResponse {
	n := f.generation.Add(1)
	tr := sessionsdk.TokenResponse{
		AccessToken:  f.mint(username, role, []string{"orders:read"}, ttl),
		RefreshToken: fmt.Sprintf("refresh-%d", n),
	}

	f.mu.Lock()
	f.issued = sessionsdk.Session{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}
	f.mu.Unlock()
	return tr
}

func (f *fakeIssuer) lastIssued() sessionsdk.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issued
}

func (f *fakeIssuer) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requestIDs = append(f.requestIDs, r.Header.Get("X-Request-ID"))
		f.mu.Unlock()

		tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			f.apiCalls.Add(1)
			writeMessage(w, http.StatusUnauthorized, "missing token")
			return
		}
		if _, err := f.verify.Verify(tok); err != nil {
			f.apiCalls.Add(1)
			writeMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}

func (f *fakeIssuer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds sessionsdk.Credentials
	_ = json.NewDecoder(r.Body).Decode(&creds)

	switch {
	case creds.Username == "broken":
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>oops</html>"))
	case creds.Password != "secret":
		writeMessage(w, http.StatusUnauthorized, "Invalid username or password")
	case creds.Username == "ada":
		writeJSON(w, http.StatusOK, f.tokens("ada", jwtx.RoleAdmin, time.Hour))
	default:
		writeJSON(w, http.StatusOK, f.tokens(creds.Username, jwtx.RoleSalesman, time.Hour))
	}
}

func (f *fakeIssuer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg sessionsdk.Registration
	_ = json.NewDecoder(r.Body).Decode(&reg)

	if reg.Username == "taken" {
		writeMessage(w, http.StatusConflict, "Username already exists")
		return
	}
	writeJSON(w, http.StatusCreated, f.tokens(reg.Username, jwtx.RoleRetailer, time.Hour))
}

func (f *fakeIssuer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	f.refreshCalls.Add(1)
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.refreshBodies = append(f.refreshBodies, string(body))
	f.mu.Unlock()

	if f.refreshGate != nil {
		<-f.refreshGate
	}

	if f.failRefresh.Load() {
		writeMessage(w, http.StatusUnauthorized, "refresh token revoked")
		return
	}
	tr := f.tokens("sam", jwtx.RoleSalesman, f.refreshTTL)
	if f.omitRefresh.Load() {
		tr.RefreshToken = ""
	}
	writeJSON(w, http.StatusOK, tr)
}

func (f *fakeIssuer) handleLogout(w http.ResponseWriter, r *http.Request) {
	f.logoutCalls.Add(1)
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.logoutBodies = append(f.logoutBodies, string(body))
	f.mu.Unlock()

	w.WriteHeader(f.logoutStatus)
}

func (f *fakeIssuer) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req sessionsdk.ChangePasswordRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.CurrentPassword != "secret" {
		writeMessage(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	writeMessage(w, http.StatusOK, "Password updated")
}

func (f *fakeIssuer) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusAccepted, "If the account exists, an email has been sent")
}

func (f *fakeIssuer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req sessionsdk.ResetPasswordRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.Token != "good-token" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "reset token expired",
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeIssuer) handleOrders(w http.ResponseWriter, r *http.Request) {
	f.apiCalls.Add(1)
	writeJSON(w, http.StatusOK, map[string]any{"orders": []string{"o-1", "o-2"}})
}

// redirectTo makes GET /api/moved answer 302 to target.
func (f *fakeIssuer) redirectTo(target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.movedTo = target
}

func (f *fakeIssuer) handleMoved(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	target := f.movedTo
	f.mu.Unlock()

	http.Redirect(w, r, target, http.StatusFound)
}

func (f *fakeIssuer) handleEcho(w http.ResponseWriter, r *http.Request) {
	f.apiCalls.Add(1)
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.Copy(w, r.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, sessionsdk.MessageResponse{Message: msg})
}
