package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/Kr3yzi/medcertify/internal/models"
	"github.com/Kr3yzi/medcertify/internal/wallet"
	"github.com/Kr3yzi/medcertify/pkg/client"
)

// Manager owns the single authenticated session. All session mutations go
// through it; everything else reads snapshots. Login and Restore are
// serialized: a second operation started while one is in flight is
// rejected rather than interleaved.
type Manager struct {
	api       *client.Client
	wallet    wallet.Provider
	store     SessionStore
	challenge *ChallengeClient
	resolver  *RoleResolver

	onDisconnect func()

	mu       sync.Mutex
	inFlight bool
	session  models.Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSessionStore sets the persistence backend.
func WithSessionStore(store SessionStore) ManagerOption {
	return func(m *Manager) {
		m.store = store
	}
}

// WithDisconnectHandler sets the hook invoked after Disconnect clears the
// session, standing in for the browser's forced navigation to the sign-in
// page.
func WithDisconnectHandler(fn func()) ManagerOption {
	return func(m *Manager) {
		m.onDisconnect = fn
	}
}

// NewManager creates a session manager over the given API client and
// wallet provider.
func NewManager(api *client.Client, w wallet.Provider, opts ...ManagerOption) *Manager {
	m := &Manager{
		api:       api,
		wallet:    w,
		store:     NewMemorySessionStore(),
		challenge: NewChallengeClient(api, w),
		resolver:  NewRoleResolver(api),
		session:   models.Session{Status: models.StatusLoggedOut},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session
	if s.Roles != nil {
		roles := make(models.RoleSet, len(s.Roles))
		for k, v := range s.Roles {
			roles[k] = v
		}
		s.Roles = roles
	}
	return s
}

// begin marks an operation in flight and moves the session to status. It
// fails when another login or restore is already running.
func (m *Manager) begin(status models.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight {
		return ErrOperationInFlight
	}
	m.inFlight = true
	m.session.Status = status
	return nil
}

func (m *Manager) finish(s models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false
	m.session = s
}

// Restore reconstructs a session from persisted state at startup. Any
// failure clears all persisted state and leaves the session logged out:
// a half-authenticated session is never retained.
func (m *Manager) Restore(ctx context.Context) error {
	if err := m.begin(models.StatusRestoring); err != nil {
		return err
	}

	token, address, err := m.store.Load()
	if err != nil {
		m.api.ClearToken()
		m.finish(models.Session{Status: models.StatusLoggedOut})
		if err == ErrNoStoredSession {
			return nil
		}
		_ = m.store.Clear()
		return fmt.Errorf("loading stored session: %w", err)
	}

	m.api.SetToken(token)

	res, err := m.resolver.Resolve(ctx)
	if err != nil {
		log.Warnw("session restore failed, clearing stored state", "error", err)
		m.rollback()
		return fmt.Errorf("restoring session: %w", err)
	}

	m.finish(models.Session{
		Address:             address,
		Token:               token,
		Roles:               res.Roles,
		PrimaryRole:         res.PrimaryRole,
		IsRegisteredPatient: res.IsRegisteredPatient,
		Status:              models.StatusAuthenticated,
	})

	log.Infow("session restored", "address", address, "primary_role", res.PrimaryRole)

	if res.RegistrationCheckErr != nil {
		return res.RegistrationCheckErr
	}
	return nil
}

// Login runs the full wallet authentication flow: request accounts, obtain
// a challenge, sign it, exchange the proof for a token, resolve roles.
// Login is all-or-nothing: any step's failure rolls the whole session back
// to logged out and discards all partial state.
func (m *Manager) Login(ctx context.Context) error {
	if err := m.begin(models.StatusAuthenticating); err != nil {
		return err
	}

	session, err := m.login(ctx)
	if err != nil {
		m.rollback()
		return err
	}

	m.finish(*session)
	log.Infow("login complete", "address", session.Address, "primary_role", session.PrimaryRole)
	return nil
}

func (m *Manager) login(ctx context.Context) (*models.Session, error) {
	if m.wallet == nil {
		return nil, ErrWalletUnavailable
	}

	accounts, err := m.wallet.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWalletUnavailable, err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrWalletUnavailable, wallet.ErrNoAccounts)
	}
	address := accounts[0]

	ch, err := m.challenge.Begin(ctx, address)
	if err != nil {
		return nil, err
	}

	proof, err := m.challenge.Sign(ctx, ch)
	if err != nil {
		return nil, err
	}

	tokenResp, err := m.api.VerifySignature(ctx, *proof)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	m.api.SetToken(tokenResp.Token)
	if err := m.store.Save(tokenResp.Token, address.Hex()); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}

	res, err := m.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	return &models.Session{
		Address:             address.Hex(),
		Token:               tokenResp.Token,
		Roles:               res.Roles,
		PrimaryRole:         res.PrimaryRole,
		IsRegisteredPatient: res.IsRegisteredPatient,
		Status:              models.StatusAuthenticated,
	}, nil
}

// rollback discards all in-memory and persisted session state. The session
// passes through the failed status before settling logged out so observers
// polling mid-rollback never see a half-authenticated state.
func (m *Manager) rollback() {
	m.mu.Lock()
	m.session = models.Session{Status: models.StatusFailed}
	m.mu.Unlock()

	m.api.ClearToken()
	_ = m.store.Clear()

	m.finish(models.Session{Status: models.StatusLoggedOut})
}

// Logout clears in-memory and persisted session state unconditionally.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.inFlight = false
	m.session = models.Session{Status: models.StatusLoggedOut}
	m.mu.Unlock()

	m.api.ClearToken()
	_ = m.store.Clear()
	log.Debugw("logged out")
}

// Disconnect clears the session like Logout and additionally invokes the
// disconnect handler to return the user to the sign-in entry point.
func (m *Manager) Disconnect() {
	m.Logout()
	if m.onDisconnect != nil {
		m.onDisconnect()
	}
}
