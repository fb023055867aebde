package cert

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kr3yzi/medcertify/internal/chain"
	"github.com/Kr3yzi/medcertify/internal/ipfs"
	"github.com/Kr3yzi/medcertify/internal/models"
	"github.com/Kr3yzi/medcertify/pkg/client"
)

const (
	verifyPatient  = "0x2222222222222222222222222222222222222222"
	verifyCertHash = "0xfeedbeef"
	verifyCID      = "bafyattestation"
)

// newVerifyBackend serves /api/verify-certificate the way the reference
// backend does: the record is found by the requested hash, and hashMatch
// carries the recomputation over the stored payload. failRecord makes the
// record check fail outright.
func newVerifyBackend(t *testing.T, hashMatch bool, failRecord bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if failRecord {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(models.ErrorResponse{Error: "internal", Message: "db down"})
			return
		}
		json.NewEncoder(w).Encode(models.APIResponse{
			Success: true,
			Data: models.VerifyCertificateResponse{
				CertHash:  verifyCertHash,
				CID:       verifyCID,
				HashMatch: hashMatch,
			},
		})
	}))
}

// newGateway serves a base64 JSON attestation for verifyCID, or 404s
// everything when ok is false.
func newGateway(t *testing.T, ok bool) *httptest.Server {
	t.Helper()
	payload := base64.StdEncoding.EncodeToString([]byte(`{"certType":"MMR Vaccine"}`))
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ok || r.URL.Path != "/"+verifyCID {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, payload)
	}))
}

func TestVerifyConjunction(t *testing.T) {
	// All eight combinations of the three signals: validity is their
	// conjunction and every signal is reported independently.
	for _, hashMatch := range []bool{false, true} {
		for _, onChain := range []bool{false, true} {
			for _, storageOk := range []bool{false, true} {
				name := fmt.Sprintf("hash=%t chain=%t storage=%t", hashMatch, onChain, storageOk)
				t.Run(name, func(t *testing.T) {
					backend := newVerifyBackend(t, hashMatch, false)
					defer backend.Close()
					gateway := newGateway(t, storageOk)
					defer gateway.Close()

					registry := chain.NewMemoryRegistry()
					if onChain {
						_, err := registry.IssueCertificate(context.Background(), common.HexToAddress(verifyPatient), verifyCertHash)
						require.NoError(t, err)
					}

					api, err := client.New(backend.URL)
					require.NoError(t, err)

					verifier := NewVerifier(api, registry, ipfs.New([]string{gateway.URL}))
					result, err := verifier.Verify(context.Background(), common.HexToAddress(verifyPatient), verifyCertHash)
					require.NoError(t, err)

					assert.Equal(t, hashMatch, result.HashMatch)
					assert.Equal(t, onChain, result.FoundOnChain)
					assert.Equal(t, storageOk, result.StorageOk)
					assert.Equal(t, hashMatch && onChain && storageOk, result.IsValid)
				})
			}
		}
	}
}

func TestVerifyRecordCheckFailureDoesNotAbortOthers(t *testing.T) {
	backend := newVerifyBackend(t, true, true)
	defer backend.Close()
	gateway := newGateway(t, true)
	defer gateway.Close()

	registry := chain.NewMemoryRegistry()
	_, err := registry.IssueCertificate(context.Background(), common.HexToAddress(verifyPatient), verifyCertHash)
	require.NoError(t, err)

	api, err := client.New(backend.URL)
	require.NoError(t, err)

	verifier := NewVerifier(api, registry, ipfs.New([]string{gateway.URL}))
	result, err := verifier.Verify(context.Background(), common.HexToAddress(verifyPatient), verifyCertHash)
	require.NoError(t, err)

	// The failed record check folds to false; the chain check still ran.
	assert.False(t, result.HashMatch)
	assert.True(t, result.FoundOnChain)
	assert.False(t, result.IsValid)
}

func TestVerifyChainLookupFailureFoldsToFalse(t *testing.T) {
	backend := newVerifyBackend(t, true, false)
	defer backend.Close()
	gateway := newGateway(t, true)
	defer gateway.Close()

	api, err := client.New(backend.URL)
	require.NoError(t, err)

	verifier := NewVerifier(api, failingLookupRegistry{}, ipfs.New([]string{gateway.URL}))
	result, err := verifier.Verify(context.Background(), common.HexToAddress(verifyPatient), verifyCertHash)
	require.NoError(t, err)

	assert.True(t, result.HashMatch)
	assert.False(t, result.FoundOnChain)
	assert.True(t, result.StorageOk)
	assert.False(t, result.IsValid)
}

func TestVerifyTamperedPayloadFailsHashCheck(t *testing.T) {
	// The record exists under the requested hash, but the backend's
	// recomputation over the stored payload disagrees.
	backend := newVerifyBackend(t, false, false)
	defer backend.Close()
	gateway := newGateway(t, true)
	defer gateway.Close()

	registry := chain.NewMemoryRegistry()
	_, err := registry.IssueCertificate(context.Background(), common.HexToAddress(verifyPatient), verifyCertHash)
	require.NoError(t, err)

	api, err := client.New(backend.URL)
	require.NoError(t, err)

	verifier := NewVerifier(api, registry, ipfs.New([]string{gateway.URL}))
	result, err := verifier.Verify(context.Background(), common.HexToAddress(verifyPatient), verifyCertHash)
	require.NoError(t, err)

	assert.False(t, result.HashMatch)
	assert.True(t, result.FoundOnChain)
	assert.True(t, result.StorageOk)
	assert.False(t, result.IsValid)
}

func TestVerifyCallerCancellation(t *testing.T) {
	backend := newVerifyBackend(t, true, false)
	defer backend.Close()

	api, err := client.New(backend.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	verifier := NewVerifier(api, chain.NewMemoryRegistry(), ipfs.New(nil))
	result, err := verifier.Verify(ctx, common.HexToAddress(verifyPatient), verifyCertHash)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingLookupRegistry struct{}

func (failingLookupRegistry) IssueCertificate(ctx context.Context, patient common.Address, certHash string) (common.Hash, error) {
	return common.Hash{}, ErrChainError
}

func (failingLookupRegistry) HasCertificate(ctx context.Context, patient common.Address, certHash string) (bool, error) {
	return false, ErrChainError
}
