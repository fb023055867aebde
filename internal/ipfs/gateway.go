// Package ipfs fetches content-addressed payloads from an ordered list of
// public gateways. Gateways are raced in parallel with a bounded
// per-gateway timeout; the first success wins. Payloads are base64 text
// wrapping a JSON document.
package ipfs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logging "github.com/ipfs/go-log"
)

var log = logging.Logger("ipfs")

var (
	// ErrNoGateways indicates the fetcher has no configured gateways.
	ErrNoGateways = errors.New("no gateways configured")
	// ErrAllGatewaysFailed indicates every gateway failed or timed out.
	ErrAllGatewaysFailed = errors.New("all gateways failed")
)

const defaultGatewayTimeout = 10 * time.Second

// Fetcher retrieves payloads by CID.
type Fetcher struct {
	gateways   []string
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

// WithGatewayTimeout bounds each individual gateway attempt.
func WithGatewayTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = timeout
	}
}

// New creates a fetcher over the given gateway base URLs.
func New(gateways []string, opts ...Option) *Fetcher {
	f := &Fetcher{
		gateways:   gateways,
		httpClient: &http.Client{},
		timeout:    defaultGatewayTimeout,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch retrieves the raw payload text for cid. All gateways run in
// parallel since the reads are idempotent; the first success cancels the
// rest. When every gateway fails, the error wraps ErrAllGatewaysFailed.
func (f *Fetcher) Fetch(ctx context.Context, cid string) ([]byte, error) {
	if len(f.gateways) == 0 {
		return nil, ErrNoGateways
	}
	if cid == "" {
		return nil, fmt.Errorf("cid cannot be empty")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		body []byte
		err  error
	}
	results := make(chan result, len(f.gateways))

	for _, gateway := range f.gateways {
		go func(gateway string) {
			body, err := f.fetchOne(ctx, gateway, cid)
			results <- result{body, err}
		}(gateway)
	}

	var errs []error
	for range f.gateways {
		select {
		case r := <-results:
			if r.err == nil {
				return r.body, nil
			}
			log.Debugw("gateway fetch failed", "cid", cid, "error", r.err)
			errs = append(errs, r.err)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrAllGatewaysFailed, errors.Join(errs...))
}

// FetchDecoded fetches the payload for cid, base64-decodes it, and
// unmarshals the resulting JSON into v.
func (f *Fetcher) FetchDecoded(ctx context.Context, cid string, v interface{}) error {
	body, err := f.Fetch(ctx, cid)
	if err != nil {
		return err
	}
	return Decode(body, v)
}

// Decode converts a gateway payload (base64 text wrapping JSON) into v.
func Decode(payload []byte, v interface{}) error {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(payload)))
	if err != nil {
		return fmt.Errorf("decoding base64 payload: %w", err)
	}
	if err := json.Unmarshal(decoded, v); err != nil {
		return fmt.Errorf("parsing payload JSON: %w", err)
	}
	return nil
}

func (f *Fetcher) fetchOne(ctx context.Context, gateway, cid string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	url := strings.TrimSuffix(gateway, "/") + "/" + cid
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", gateway, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching from %s: %w", gateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, gateway)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body from %s: %w", gateway, err)
	}

	return body, nil
}
