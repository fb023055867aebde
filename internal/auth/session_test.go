package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kr3yzi/medcertify/internal/models"
	"github.com/Kr3yzi/medcertify/internal/wallet"
	"github.com/Kr3yzi/medcertify/pkg/client"
)

// authBackend is a minimal in-memory login backend: one-time nonces,
// signature recovery over the exact challenge message, bearer tokens, and
// role lookups. It mirrors the verification the real server performs.
type authBackend struct {
	mu         sync.Mutex
	nonces     map[string]string // address -> outstanding nonce
	tokens     map[string]string // token -> address
	roles      models.RoleSet
	registered bool

	failVerify    bool
	failRoleCheck bool

	// nonceGate, when set, blocks generate-nonce until closed.
	nonceGate chan struct{}
}

func newAuthBackend(roles models.RoleSet, registered bool) *authBackend {
	return &authBackend{
		nonces:     make(map[string]string),
		tokens:     make(map[string]string),
		roles:      roles,
		registered: registered,
	}
}

func (b *authBackend) serve(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/generate-nonce":
			if b.nonceGate != nil {
				<-b.nonceGate
			}
			var req models.NonceRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			nonce := uuid.NewString()
			b.mu.Lock()
			b.nonces[strings.ToLower(req.Address)] = nonce
			b.mu.Unlock()
			json.NewEncoder(w).Encode(models.APIResponse{Success: true, Data: models.NonceResponse{Nonce: nonce}})

		case "/api/verify-signature":
			var req models.VerifySignatureRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			b.mu.Lock()
			nonce, ok := b.nonces[strings.ToLower(req.Address)]
			delete(b.nonces, strings.ToLower(req.Address))
			b.mu.Unlock()

			if b.failVerify || !ok || nonce != req.Nonce {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(models.ErrorResponse{Error: "unauthorized", Message: "invalid signature"})
				return
			}

			msg := ChallengeMessage(nonce)
			recovered, err := wallet.RecoverPersonal([]byte(msg), common.FromHex(req.Signature))
			if err != nil || recovered != common.HexToAddress(req.Address) {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(models.ErrorResponse{Error: "unauthorized", Message: "invalid signature"})
				return
			}

			token := "tok-" + uuid.NewString()
			b.mu.Lock()
			b.tokens[token] = req.Address
			b.mu.Unlock()
			json.NewEncoder(w).Encode(models.APIResponse{Success: true, Data: models.TokenResponse{Token: token}})

		case "/api/check-role":
			if b.failRoleCheck || !b.authorized(r) {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(models.ErrorResponse{Error: "unauthorized", Message: "missing or invalid token"})
				return
			}
			json.NewEncoder(w).Encode(models.APIResponse{Success: true, Data: models.RoleCheckResponse{Roles: b.roles}})

		case "/api/patient/verify":
			if !b.authorized(r) {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(models.ErrorResponse{Error: "unauthorized", Message: "missing or invalid token"})
				return
			}
			json.NewEncoder(w).Encode(models.APIResponse{Success: true, Data: models.PatientVerifyResponse{IsRegistered: b.registered}})

		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func (b *authBackend) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.tokens[token]
	return ok
}

func (b *authBackend) issueToken(address string) string {
	token := "tok-" + uuid.NewString()
	b.mu.Lock()
	b.tokens[token] = address
	b.mu.Unlock()
	return token
}

func newTestManager(t *testing.T, b *authBackend, opts ...ManagerOption) (*Manager, *client.Client, common.Address) {
	t.Helper()

	server := b.serve(t)
	t.Cleanup(server.Close)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	api, err := client.New(server.URL)
	require.NoError(t, err)

	m := NewManager(api, wallet.NewFromKey(key), opts...)
	return m, api, crypto.PubkeyToAddress(key.PublicKey)
}

func TestLoginHappyPath(t *testing.T) {
	backend := newAuthBackend(models.RoleSet{models.RoleDoctor: true}, false)
	m, api, address := newTestManager(t, backend)

	require.NoError(t, m.Login(context.Background()))

	s := m.Session()
	assert.Equal(t, models.StatusAuthenticated, s.Status)
	assert.True(t, s.Authenticated())
	assert.Equal(t, address.Hex(), s.Address)
	assert.Equal(t, models.RoleDoctor, s.PrimaryRole)
	assert.NotEmpty(t, s.Token)
	assert.Equal(t, s.Token, api.Token(), "client carries the session token")
}

func TestLoginRollbackOnVerifyFailure(t *testing.T) {
	backend := newAuthBackend(models.RoleSet{models.RoleDoctor: true}, false)
	backend.failVerify = true
	store := NewMemorySessionStore()
	m, api, _ := newTestManager(t, backend, WithSessionStore(store))

	err := m.Login(context.Background())
	require.ErrorIs(t, err, ErrAuthFailed)

	s := m.Session()
	assert.Equal(t, models.StatusLoggedOut, s.Status)
	assert.False(t, s.Authenticated())
	assert.Empty(t, s.Token)
	assert.Empty(t, api.Token())
	_, _, loadErr := store.Load()
	assert.ErrorIs(t, loadErr, ErrNoStoredSession)
}

func TestLoginRollbackOnRoleCheckFailure(t *testing.T) {
	// The token exchange succeeds but role resolution fails: everything,
	// including the already-persisted token, must be discarded.
	backend := newAuthBackend(models.RoleSet{models.RoleDoctor: true}, false)
	backend.failRoleCheck = true
	store := NewMemorySessionStore()
	m, api, _ := newTestManager(t, backend, WithSessionStore(store))

	err := m.Login(context.Background())
	require.Error(t, err)

	s := m.Session()
	assert.Equal(t, models.StatusLoggedOut, s.Status)
	assert.Empty(t, api.Token())
	_, _, loadErr := store.Load()
	assert.ErrorIs(t, loadErr, ErrNoStoredSession)
}

func TestLoginUserRejectedRollsBack(t *testing.T) {
	backend := newAuthBackend(models.RoleSet{models.RoleDoctor: true}, false)
	server := backend.serve(t)
	t.Cleanup(server.Close)

	api, err := client.New(server.URL)
	require.NoError(t, err)

	m := NewManager(api, rejectingWallet{})
	err = m.Login(context.Background())
	require.ErrorIs(t, err, wallet.ErrUserRejected)
	assert.Equal(t, models.StatusLoggedOut, m.Session().Status)
}

func TestLoginConcurrentOperationRejected(t *testing.T) {
	backend := newAuthBackend(models.RoleSet{models.RoleDoctor: true}, false)
	backend.nonceGate = make(chan struct{})
	m, _, _ := newTestManager(t, backend)

	done := make(chan error, 1)
	go func() {
		done <- m.Login(context.Background())
	}()

	// Wait until the first login is blocked inside the nonce request.
	require.Eventually(t, func() bool {
		return m.Session().Status == models.StatusAuthenticating
	}, 2*time.Second, 10*time.Millisecond)

	err := m.Login(context.Background())
	assert.ErrorIs(t, err, ErrOperationInFlight)
	err = m.Restore(context.Background())
	assert.ErrorIs(t, err, ErrOperationInFlight)

	close(backend.nonceGate)
	require.NoError(t, <-done)
	assert.True(t, m.Session().Authenticated())
}

func TestRestoreHappyPath(t *testing.T) {
	backend := newAuthBackend(models.RoleSet{models.RolePatient: true}, true)
	address := "0x4444444444444444444444444444444444444444"
	token := backend.issueToken(address)

	store := NewMemorySessionStore()
	require.NoError(t, store.Save(token, address))

	m, api, _ := newTestManager(t, backend, WithSessionStore(store))
	require.NoError(t, m.Restore(context.Background()))

	s := m.Session()
	assert.True(t, s.Authenticated())
	assert.Equal(t, address, s.Address)
	assert.Equal(t, token, s.Token)
	assert.Equal(t, models.RolePatient, s.PrimaryRole)
	assert.True(t, s.IsRegisteredPatient)
	assert.Equal(t, token, api.Token())
}

func TestRestoreNothingStored(t *testing.T) {
	backend := newAuthBackend(models.RoleSet{}, false)
	m, _, _ := newTestManager(t, backend)

	require.NoError(t, m.Restore(context.Background()))
	assert.Equal(t, models.StatusLoggedOut, m.Session().Status)
}

func TestRestoreStaleTokenFailsClosed(t *testing.T) {
	backend := newAuthBackend(models.RoleSet{models.RoleDoctor: true}, false)

	store := NewMemorySessionStore()
	require.NoError(t, store.Save("tok-expired", "0x4444444444444444444444444444444444444444"))

	m, api, _ := newTestManager(t, backend, WithSessionStore(store))
	err := m.Restore(context.Background())
	require.Error(t, err)

	s := m.Session()
	assert.Equal(t, models.StatusLoggedOut, s.Status)
	assert.Empty(t, api.Token())
	_, _, loadErr := store.Load()
	assert.ErrorIs(t, loadErr, ErrNoStoredSession, "stale state is cleared, not retried")
}

func TestLogoutClearsEverything(t *testing.T) {
	backend := newAuthBackend(models.RoleSet{models.RoleAdmin: true}, false)
	store := NewMemorySessionStore()
	m, api, _ := newTestManager(t, backend, WithSessionStore(store))

	require.NoError(t, m.Login(context.Background()))
	require.True(t, m.Session().Authenticated())

	m.Logout()

	s := m.Session()
	assert.Equal(t, models.StatusLoggedOut, s.Status)
	assert.Empty(t, s.Token)
	assert.Empty(t, api.Token())
	_, _, loadErr := store.Load()
	assert.ErrorIs(t, loadErr, ErrNoStoredSession)
}

func TestDisconnectInvokesHandler(t *testing.T) {
	backend := newAuthBackend(models.RoleSet{models.RoleAdmin: true}, false)
	var disconnected bool
	m, _, _ := newTestManager(t, backend, WithDisconnectHandler(func() { disconnected = true }))

	require.NoError(t, m.Login(context.Background()))
	m.Disconnect()

	assert.True(t, disconnected)
	assert.Equal(t, models.StatusLoggedOut, m.Session().Status)
}

func TestSessionTokenInvariant(t *testing.T) {
	// Token is non-empty exactly when the session is authenticated, at
	// every observable point of the lifecycle.
	backend := newAuthBackend(models.RoleSet{models.RoleNurse: true}, false)
	m, _, _ := newTestManager(t, backend)

	check := func(label string) {
		s := m.Session()
		if s.Status == models.StatusAuthenticated {
			assert.NotEmpty(t, s.Token, label)
		} else {
			assert.Empty(t, s.Token, label)
		}
	}

	check("initial")
	require.NoError(t, m.Login(context.Background()))
	check("after login")
	m.Logout()
	check("after logout")
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)

	_, _, err := store.Load()
	assert.ErrorIs(t, err, ErrNoStoredSession)

	require.NoError(t, store.Save("tok-1", "0x4444444444444444444444444444444444444444"))
	token, address, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "0x4444444444444444444444444444444444444444", address)

	require.NoError(t, store.Clear())
	_, _, err = store.Load()
	assert.ErrorIs(t, err, ErrNoStoredSession)

	// Clearing an already-clean store is not an error.
	require.NoError(t, store.Clear())
}
