// Package cert implements the certificate issuance and verification
// protocols: the issuance pipeline ties a content hash, a storage pointer,
// and an on-chain record together, and verification only accepts a
// certificate when all three agree.
package cert

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log"

	"github.com/Kr3yzi/medcertify/internal/chain"
	"github.com/Kr3yzi/medcertify/internal/models"
	"github.com/Kr3yzi/medcertify/internal/wallet"
	"github.com/Kr3yzi/medcertify/pkg/client"
)

var log = logging.Logger("cert")

// signingMessageFormat is the exact certificate signing text. It is
// intentionally not the login challenge format: each protocol use keeps its
// own message family, and the verifying party expects this one verbatim.
const signingMessageFormat = "Cert CID: %s"

// SigningMessage builds the deterministic signing message for a content
// hash.
func SigningMessage(certHash string) string {
	return fmt.Sprintf(signingMessageFormat, certHash)
}

// Issuer runs the five-step issuance pipeline. Steps are strictly
// sequential and nothing is retried automatically: a failed step surfaces
// as a StepError and retry is an explicit caller action. A successful
// issuance performs exactly one wallet signature prompt and one on-chain
// transaction.
type Issuer struct {
	api      *client.Client
	wallet   wallet.Provider
	registry chain.Registry
}

// NewIssuer creates an issuer over the given API client, wallet, and chain
// registry.
func NewIssuer(api *client.Client, w wallet.Provider, registry chain.Registry) *Issuer {
	return &Issuer{api: api, wallet: w, registry: registry}
}

// Issue submits the attestation, signs its content hash, attaches the
// signature, records the certificate on-chain, and reconciles the
// transaction hash back into the record.
//
// A reconcile failure (step 5) is non-fatal to the certificate itself
// (the chain is the source of truth), so Issue returns the record alongside
// a StepError for StepReconcile; callers must surface it for retry or
// manual reconciliation.
func (i *Issuer) Issue(ctx context.Context, req models.IssueCertificateRequest) (*models.CertificateRecord, error) {
	if i.wallet == nil {
		return nil, &StepError{Step: StepSign, Err: wallet.ErrUnavailable}
	}

	// Step 1: submit attestation content, obtain the content hash.
	submitted, err := i.api.IssueCertificate(ctx, req)
	if err != nil {
		return nil, &StepError{Step: StepSubmit, Err: fmt.Errorf("%w: %v", ErrSubmissionFailed, err)}
	}

	record := &models.CertificateRecord{
		PatientAddress: req.Patient,
		CertType:       req.CertType,
		CertHash:       submitted.CertHash,
		CID:            submitted.CID,
		IssuedBy:       req.IssuedBy,
		IssuedAt:       time.Now(),
	}

	log.Debugw("attestation stored", "cert_hash", record.CertHash, "cid", record.CID)

	// Step 2: the single wallet signature prompt of the flow.
	issuer := common.HexToAddress(req.IssuedBy)
	sig, err := i.wallet.PersonalSign(ctx, []byte(SigningMessage(record.CertHash)), issuer)
	if err != nil {
		return nil, &StepError{Step: StepSign, Err: err}
	}
	record.Signature = "0x" + hex.EncodeToString(sig)

	// Step 3: attach the signature. The hash is already fixed, so this is
	// idempotent and safe to retry server-side.
	if err := i.api.AttachSignature(ctx, record.CertHash, record.Signature); err != nil {
		return nil, &StepError{Step: StepAttach, Err: fmt.Errorf("%w: %v", ErrAttachFailed, err)}
	}

	// Step 4: the single on-chain transaction of the flow.
	txHash, err := i.registry.IssueCertificate(ctx, common.HexToAddress(req.Patient), record.CertHash)
	if err != nil {
		if errors.Is(err, wallet.ErrUserRejected) {
			return nil, &StepError{Step: StepChain, Err: fmt.Errorf("%w: %v", ErrChainRejected, err)}
		}
		return nil, &StepError{Step: StepChain, Err: fmt.Errorf("%w: %v", ErrChainError, err)}
	}
	record.TransactionHash = txHash.Hex()

	// Step 5: reconcile the transaction hash into the off-chain record.
	if err := i.api.RecordTransaction(ctx, record.CertHash, record.TransactionHash); err != nil {
		log.Warnw("transaction reconciliation failed",
			"cert_hash", record.CertHash,
			"tx", record.TransactionHash,
			"error", err)
		return record, &StepError{Step: StepReconcile, Err: fmt.Errorf("%w: %v", ErrReconcileFailed, err)}
	}

	log.Infow("certificate issued",
		"patient", record.PatientAddress,
		"cert_hash", record.CertHash,
		"tx", record.TransactionHash)

	return record, nil
}
