package test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kr3yzi/medcertify/internal/auth"
	"github.com/Kr3yzi/medcertify/internal/cert"
	"github.com/Kr3yzi/medcertify/internal/chain"
	"github.com/Kr3yzi/medcertify/internal/config"
	"github.com/Kr3yzi/medcertify/internal/ipfs"
	"github.com/Kr3yzi/medcertify/internal/models"
	"github.com/Kr3yzi/medcertify/internal/server"
	"github.com/Kr3yzi/medcertify/internal/storage"
	"github.com/Kr3yzi/medcertify/internal/wallet"
	"github.com/Kr3yzi/medcertify/pkg/client"
)

// TestSystemFlow drives the whole platform in-process: an admin seeds
// roles and registers a patient, a doctor logs in with a wallet, issues a
// certificate through the five-step pipeline against the chain simulator,
// and the certificate verifies against all three of its representations.
func TestSystemFlow(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			JWTSecret:    "system-test-secret",
			TokenTTL:     time.Hour,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Chain: config.ChainConfig{Mode: "memory"},
	}

	store := storage.NewMemoryStore()
	srv, err := server.New(cfg, server.WithStore(store))
	require.NoError(t, err)

	backend := httptest.NewServer(srv.Echo())
	defer backend.Close()

	ctx := context.Background()

	// --- Admin bootstraps the clinic. The very first admin role is
	// seeded directly; everything after goes through the API.
	adminKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	adminAddr := crypto.PubkeyToAddress(adminKey.PublicKey)
	require.NoError(t, store.Grant(adminAddr.Hex(), models.RoleAdmin))

	adminAPI, err := client.New(backend.URL)
	require.NoError(t, err)
	adminSession := auth.NewManager(adminAPI, wallet.NewFromKey(adminKey))
	require.NoError(t, adminSession.Login(ctx))
	require.Equal(t, models.RoleAdmin, adminSession.Session().PrimaryRole)

	doctorKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	doctorAddr := crypto.PubkeyToAddress(doctorKey.PublicKey)
	require.NoError(t, adminAPI.GrantRole(ctx, doctorAddr.Hex(), models.RoleDoctor))

	patientKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	patientAddr := crypto.PubkeyToAddress(patientKey.PublicKey)
	require.NoError(t, adminAPI.RegisterPatient(ctx, models.PatientRegisterRequest{
		Address:  patientAddr.Hex(),
		FullName: "Alice Tan",
	}))

	// --- Doctor logs in with a persisted session.
	sessionFile := filepath.Join(t.TempDir(), "session.json")
	doctorAPI, err := client.New(backend.URL)
	require.NoError(t, err)
	doctorSession := auth.NewManager(doctorAPI, wallet.NewFromKey(doctorKey),
		auth.WithSessionStore(auth.NewFileStore(sessionFile)))
	require.NoError(t, doctorSession.Login(ctx))

	s := doctorSession.Session()
	require.True(t, s.Authenticated())
	require.Equal(t, models.RoleDoctor, s.PrimaryRole)

	// --- Doctor issues a certificate against the chain simulator.
	registry, err := chain.NewDevRegistry(backend.URL)
	require.NoError(t, err)

	issuer := cert.NewIssuer(doctorAPI, wallet.NewFromKey(doctorKey), registry)
	record, err := issuer.Issue(ctx, models.IssueCertificateRequest{
		Patient:     patientAddr.Hex(),
		IssuedBy:    doctorAddr.Hex(),
		CertType:    "MMR Vaccine",
		Attestation: "patient received the MMR vaccine",
	})
	require.NoError(t, err)
	require.False(t, record.Pending())

	// --- The certificate verifies against all three representations.
	verifier := cert.NewVerifier(doctorAPI, registry, ipfs.New([]string{backend.URL + "/ipfs"}))
	result, err := verifier.Verify(ctx, patientAddr, record.CertHash)
	require.NoError(t, err)
	assert.True(t, result.HashMatch)
	assert.True(t, result.FoundOnChain)
	assert.True(t, result.StorageOk)
	assert.True(t, result.IsValid)

	// A fabricated hash fails every check without erroring.
	forged, err := verifier.Verify(ctx, patientAddr, "0x0000000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.False(t, forged.IsValid)
	assert.False(t, forged.HashMatch)
	assert.False(t, forged.FoundOnChain)

	// A claim against the wrong patient fails the chain check.
	stranger := common.HexToAddress("0x9999999999999999999999999999999999999999")
	misattributed, err := verifier.Verify(ctx, stranger, record.CertHash)
	require.NoError(t, err)
	assert.False(t, misattributed.FoundOnChain)
	assert.False(t, misattributed.IsValid)

	// --- Patient logs in and sees their registration.
	patientAPI, err := client.New(backend.URL)
	require.NoError(t, err)
	patientSession := auth.NewManager(patientAPI, wallet.NewFromKey(patientKey))
	require.NoError(t, patientSession.Login(ctx))
	ps := patientSession.Session()
	assert.Equal(t, models.RolePatient, ps.PrimaryRole)
	assert.True(t, ps.IsRegisteredPatient)

	// --- The doctor's session survives a "restart": a fresh manager
	// restores it from the session file.
	restoredAPI, err := client.New(backend.URL)
	require.NoError(t, err)
	restored := auth.NewManager(restoredAPI, wallet.NewFromKey(doctorKey),
		auth.WithSessionStore(auth.NewFileStore(sessionFile)))
	require.NoError(t, restored.Restore(ctx))
	rs := restored.Session()
	assert.True(t, rs.Authenticated())
	assert.Equal(t, doctorAddr.Hex(), rs.Address)
	assert.Equal(t, models.RoleDoctor, rs.PrimaryRole)

	// Logout clears the persisted session for good.
	restored.Logout()
	after := auth.NewManager(restoredAPI, wallet.NewFromKey(doctorKey),
		auth.WithSessionStore(auth.NewFileStore(sessionFile)))
	require.NoError(t, after.Restore(ctx))
	assert.False(t, after.Session().Authenticated())
}
