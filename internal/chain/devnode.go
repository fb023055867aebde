package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Kr3yzi/medcertify/internal/models"
)

// DevRegistry talks to the chain simulator exposed by the dev server. It
// lets the CLI exercise the full issuance flow against `medcertify serve`
// without a real node.
type DevRegistry struct {
	httpClient *http.Client
	baseURL    string
}

// NewDevRegistry creates a registry client for the simulator at baseURL.
func NewDevRegistry(baseURL string) (*DevRegistry, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	return &DevRegistry{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(u.String(), "/"),
	}, nil
}

func (r *DevRegistry) IssueCertificate(ctx context.Context, patient common.Address, certHash string) (common.Hash, error) {
	body, err := json.Marshal(models.ChainIssueRequest{
		Patient:  patient.Hex(),
		CertHash: certHash,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("marshaling issue request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chain/issue", bytes.NewReader(body))
	if err != nil {
		return common.Hash{}, fmt.Errorf("creating issue request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return common.Hash{}, fmt.Errorf("submitting simulated issuance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return common.Hash{}, fmt.Errorf("chain simulator returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Success bool                      `json:"success"`
		Data    models.ChainIssueResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return common.Hash{}, fmt.Errorf("decoding issue response: %w", err)
	}
	if !envelope.Success {
		return common.Hash{}, fmt.Errorf("chain simulator rejected issuance")
	}

	return common.HexToHash(envelope.Data.TransactionHash), nil
}

func (r *DevRegistry) HasCertificate(ctx context.Context, patient common.Address, certHash string) (bool, error) {
	endpoint := fmt.Sprintf("%s/chain/certificates/%s/%s", r.baseURL, patient.Hex(), url.PathEscape(certHash))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("creating lookup request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("querying chain simulator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("chain simulator returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Success bool                       `json:"success"`
		Data    models.ChainLookupResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return false, fmt.Errorf("decoding lookup response: %w", err)
	}

	return envelope.Data.Found, nil
}
