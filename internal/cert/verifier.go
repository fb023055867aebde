package cert

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/Kr3yzi/medcertify/internal/chain"
	"github.com/Kr3yzi/medcertify/internal/ipfs"
	"github.com/Kr3yzi/medcertify/internal/models"
	"github.com/Kr3yzi/medcertify/pkg/client"
)

// Verifier recomputes the three independent verification signals for a
// claimed certificate: on-chain presence, hash equality against the
// off-chain record, and storage reachability. The checks run concurrently,
// none aborts the others, and the result is assembled only once all three
// have resolved. Validity is their conjunction, with no partial credit.
type Verifier struct {
	api      *client.Client
	registry chain.Registry
	fetcher  *ipfs.Fetcher
}

// NewVerifier creates a verifier over the given API client, chain
// registry, and gateway fetcher.
func NewVerifier(api *client.Client, registry chain.Registry, fetcher *ipfs.Fetcher) *Verifier {
	return &Verifier{api: api, registry: registry, fetcher: fetcher}
}

// Verify checks (patient, certHash) against all three signals. Individual
// check failures are folded into a false signal rather than an error:
// verification always produces a complete result. The returned error is
// reserved for caller-driven cancellation.
func (v *Verifier) Verify(ctx context.Context, patient common.Address, certHash string) (*models.VerificationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &models.VerificationResult{}

	// The storage check needs the record's CID; the record check hands it
	// over once known, falling back to the content hash itself when the
	// record is unavailable.
	cidCh := make(chan string, 1)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		resp, err := v.api.VerifyCertificate(gctx, patient.Hex(), certHash)
		if err != nil {
			log.Warnw("off-chain record check failed", "cert_hash", certHash, "error", err)
			cidCh <- certHash
			return nil
		}
		// The backend recomputes the hash over the stored payload, so a
		// tampered payload fails this signal even when the record exists.
		result.HashMatch = resp.HashMatch && resp.CertHash == certHash

		cid := resp.CID
		if cid == "" {
			cid = certHash
		}
		cidCh <- cid
		return nil
	})

	g.Go(func() error {
		found, err := v.registry.HasCertificate(gctx, patient, certHash)
		if err != nil {
			log.Warnw("on-chain lookup failed", "cert_hash", certHash, "error", err)
			return nil
		}
		result.FoundOnChain = found
		return nil
	})

	g.Go(func() error {
		var cid string
		select {
		case cid = <-cidCh:
		case <-gctx.Done():
			return nil
		}

		var payload map[string]interface{}
		if err := v.fetcher.FetchDecoded(gctx, cid, &payload); err != nil {
			log.Warnw("storage check failed", "cid", cid, "error", err)
			return nil
		}
		result.StorageOk = true
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.IsValid = result.FoundOnChain && result.HashMatch && result.StorageOk

	log.Debugw("verification complete",
		"patient", patient.Hex(),
		"cert_hash", certHash,
		"found_on_chain", result.FoundOnChain,
		"hash_match", result.HashMatch,
		"storage_ok", result.StorageOk,
		"is_valid", result.IsValid)

	return result, nil
}
