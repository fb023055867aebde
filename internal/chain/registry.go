// Package chain talks to the certificate registry contract. The contract
// itself is an external service: it exposes issueCertificate(patient, hash)
// and a lookup by (patient, hash), and is treated as the source of truth
// for certificate existence.
package chain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log"
)

var log = logging.Logger("chain")

var (
	// ErrNotConfigured indicates no registry backend was configured.
	ErrNotConfigured = errors.New("chain registry not configured")
)

// Registry is the on-chain certificate registry surface.
type Registry interface {
	// IssueCertificate submits the issuance transaction for
	// (patient, certHash) and returns the confirmed transaction hash.
	IssueCertificate(ctx context.Context, patient common.Address, certHash string) (common.Hash, error)
	// HasCertificate reports whether a record exists for
	// (patient, certHash).
	HasCertificate(ctx context.Context, patient common.Address, certHash string) (bool, error)
}
