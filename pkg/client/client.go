// Package client provides a Go client for the MedCertify backend API.
//
// The client abstracts HTTP communication with the clinic backend and
// provides methods for the wallet authentication flow (nonce generation,
// signature verification, role and patient checks) and the certificate
// protocol (issuance, signature attachment, transaction reconciliation,
// verification).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/Kr3yzi/medcertify/internal/models"
)

// Client represents a MedCertify API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithUserAgent sets a custom user agent.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithToken sets the initial bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// New creates a new MedCertify API client.
func New(baseURL string, opts ...Option) (*Client, error) {
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

	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:   strings.TrimSuffix(u.String(), "/"),
		userAgent: "medcertify-client/1.0",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// SetToken replaces the bearer token used for authenticated endpoints.
// The session manager owns the token lifecycle; everything else only reads
// it through requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// ClearToken removes the bearer token.
func (c *Client) ClearToken() {
	c.SetToken("")
}

// Token returns the current bearer token, empty if unauthenticated.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// HealthCheck checks if the backend is reachable and healthy.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return fmt.Errorf("creating health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// GenerateNonce requests a one-time login nonce for the given address.
func (c *Client) GenerateNonce(ctx context.Context, address string) (*models.NonceResponse, error) {
	if address == "" {
		return nil, fmt.Errorf("address cannot be empty")
	}

	req := models.NonceRequest{Address: address}

	var resp models.NonceResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/generate-nonce", req, &resp); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return &resp, nil
}

// VerifySignature exchanges a signed challenge for a bearer token.
func (c *Client) VerifySignature(ctx context.Context, proof models.AuthProof) (*models.TokenResponse, error) {
	if proof.Address == "" || proof.Signature == "" || proof.Nonce == "" {
		return nil, fmt.Errorf("address, signature and nonce are all required")
	}

	req := models.VerifySignatureRequest{
		Address:   proof.Address,
		Signature: proof.Signature,
		Nonce:     proof.Nonce,
	}

	var resp models.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/verify-signature", req, &resp); err != nil {
		return nil, fmt.Errorf("verifying signature: %w", err)
	}

	return &resp, nil
}

// CheckRole fetches the caller's role membership set. Requires a token.
func (c *Client) CheckRole(ctx context.Context) (*models.RoleCheckResponse, error) {
	var resp models.RoleCheckResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/check-role", nil, &resp); err != nil {
		return nil, fmt.Errorf("checking roles: %w", err)
	}

	return &resp, nil
}

// VerifyPatient checks whether the caller has a patient record. Requires a
// token.
func (c *Client) VerifyPatient(ctx context.Context) (*models.PatientVerifyResponse, error) {
	var resp models.PatientVerifyResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/patient/verify", nil, &resp); err != nil {
		return nil, fmt.Errorf("verifying patient registration: %w", err)
	}

	return &resp, nil
}

// IssueCertificate submits attestation content and returns the content hash
// and storage pointer of the stored payload. Requires a token.
func (c *Client) IssueCertificate(ctx context.Context, req models.IssueCertificateRequest) (*models.IssueCertificateResponse, error) {
	if req.Patient == "" {
		return nil, fmt.Errorf("patient address cannot be empty")
	}
	if req.Attestation == "" {
		return nil, fmt.Errorf("attestation cannot be empty")
	}

	var resp models.IssueCertificateResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/issue-certificate", req, &resp); err != nil {
		return nil, fmt.Errorf("submitting certificate: %w", err)
	}

	return &resp, nil
}

// AttachSignature attaches the issuer's signature to a pending certificate
// record. Resubmitting the same signature for the same hash is a no-op.
func (c *Client) AttachSignature(ctx context.Context, certHash, signature string) error {
	if certHash == "" {
		return fmt.Errorf("cert hash cannot be empty")
	}
	if signature == "" {
		return fmt.Errorf("signature cannot be empty")
	}

	endpoint := fmt.Sprintf("/api/issue-certificate/%s/signature", certHash)
	req := models.AttachSignatureRequest{Signature: signature}

	if err := c.doRequest(ctx, http.MethodPatch, endpoint, req, nil); err != nil {
		return fmt.Errorf("attaching signature: %w", err)
	}

	return nil
}

// RecordTransaction reconciles the on-chain transaction hash into the
// certificate record.
func (c *Client) RecordTransaction(ctx context.Context, certHash, transactionHash string) error {
	if certHash == "" {
		return fmt.Errorf("cert hash cannot be empty")
	}
	if transactionHash == "" {
		return fmt.Errorf("transaction hash cannot be empty")
	}

	endpoint := fmt.Sprintf("/api/certificates/%s/tx", certHash)
	req := models.RecordTransactionRequest{TransactionHash: transactionHash}

	if err := c.doRequest(ctx, http.MethodPatch, endpoint, req, nil); err != nil {
		return fmt.Errorf("recording transaction: %w", err)
	}

	return nil
}

// VerifyCertificate asks the backend for its view of a certificate. The
// response echoes the stored hash and CID so callers can recompute the
// verification checks themselves.
func (c *Client) VerifyCertificate(ctx context.Context, patientAddress, certHash string) (*models.VerifyCertificateResponse, error) {
	if patientAddress == "" {
		return nil, fmt.Errorf("patient address cannot be empty")
	}
	if certHash == "" {
		return nil, fmt.Errorf("cert hash cannot be empty")
	}

	req := models.VerifyCertificateRequest{
		PatientAddress: patientAddress,
		CertHash:       certHash,
	}

	var resp models.VerifyCertificateResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/verify-certificate", req, &resp); err != nil {
		return nil, fmt.Errorf("verifying certificate: %w", err)
	}

	return &resp, nil
}

// ListCertificates returns the certificate records visible to the caller:
// staff see every record, patients see their own. Requires a token.
func (c *Client) ListCertificates(ctx context.Context) ([]models.CertificateRecord, error) {
	var resp []models.CertificateRecord
	if err := c.doRequest(ctx, http.MethodGet, "/api/certificates", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing certificates: %w", err)
	}

	return resp, nil
}

// GrantRole grants a role to an address. Requires an admin token.
func (c *Client) GrantRole(ctx context.Context, address string, role models.Role) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if role == "" {
		return fmt.Errorf("role cannot be empty")
	}

	req := models.RoleGrantRequest{Address: address, Role: role}
	if err := c.doRequest(ctx, http.MethodPost, "/api/admin/roles", req, nil); err != nil {
		return fmt.Errorf("granting role: %w", err)
	}

	return nil
}

// RegisterPatient creates a patient record. Requires a receptionist or
// admin token.
func (c *Client) RegisterPatient(ctx context.Context, req models.PatientRegisterRequest) error {
	if req.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if err := c.doRequest(ctx, http.MethodPost, "/api/patients", req, nil); err != nil {
		return fmt.Errorf("registering patient: %w", err)
	}

	return nil
}

// doRequest performs an HTTP request with JSON serialization/deserialization.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(resp)
	}

	// Successful responses arrive in the API envelope.
	var apiResp models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if !apiResp.Success {
		return fmt.Errorf("API error: %s", apiResp.Error)
	}

	// Re-marshal and unmarshal to convert the data to the expected type.
	if result != nil && apiResp.Data != nil {
		data, err := json.Marshal(apiResp.Data)
		if err != nil {
			return fmt.Errorf("marshaling response data: %w", err)
		}

		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshaling response data: %w", err)
		}
	}

	return nil
}

// newRequest creates a new HTTP request with common headers.
func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	u.Path = path.Join(u.Path, endpoint)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

// handleErrorResponse processes error responses from the API.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp models.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errResp.Message,
			ErrorCode:  errResp.Error,
		}
	}

	var apiResp models.APIResponse
	if err := json.Unmarshal(body, &apiResp); err == nil && !apiResp.Success {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    apiResp.Message,
			ErrorCode:  apiResp.Error,
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
		ErrorCode:  fmt.Sprintf("HTTP_%d", resp.StatusCode),
	}
}

// APIError represents an error response from the MedCertify API.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	ErrorCode  string `json:"error_code"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("medcertify API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("medcertify API error (%d): %s", e.StatusCode, e.ErrorCode)
}

// IsNotFound returns true if the error is a 404 Not Found.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsBadRequest returns true if the error is a 400 Bad Request.
func (e *APIError) IsBadRequest() bool {
	return e.StatusCode == http.StatusBadRequest
}

// IsUnauthorized returns true if the error is a 401 Unauthorized.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsForbidden returns true if the error is a 403 Forbidden.
func (e *APIError) IsForbidden() bool {
	return e.StatusCode == http.StatusForbidden
}

// IsConflict returns true if the error is a 409 Conflict.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}
