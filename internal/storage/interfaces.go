// Package storage defines the backend's persistence interfaces and an
// in-memory implementation used by the reference server and tests.
package storage

import (
	"errors"

	"github.com/Kr3yzi/medcertify/internal/models"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrNonceInvalid        = errors.New("nonce invalid or expired")
	ErrSignatureConflict   = errors.New("record already carries a different signature")
	ErrTransactionConflict = errors.New("record already carries a different transaction hash")
	ErrPatientExists       = errors.New("patient already registered")
)

// NonceStore issues and consumes one-time login nonces. A nonce is bound
// to the requesting address, expires after a TTL, and is invalidated by
// its first consumption regardless of outcome.
type NonceStore interface {
	Issue(address string) (string, error)
	Consume(address, nonce string) error
}

// CertificateStore is the off-chain system of record for issued
// certificates, keyed by content hash. Attaching a signature or a
// transaction hash is idempotent for identical values and a conflict for
// differing ones.
type CertificateStore interface {
	Create(record *models.CertificateRecord) error
	GetByHash(certHash string) (*models.CertificateRecord, error)
	AttachSignature(certHash, signature string) error
	RecordTransaction(certHash, transactionHash string) error
	List() ([]models.CertificateRecord, error)
	ListByPatient(address string) ([]models.CertificateRecord, error)
}

// RoleStore tracks role memberships per wallet address.
type RoleStore interface {
	Grant(address string, role models.Role) error
	Roles(address string) (models.RoleSet, error)
}

// PatientStore tracks registered patient records. Registration is what
// turns a patient-role holder into a usable patient identity.
type PatientStore interface {
	Register(req models.PatientRegisterRequest) error
	IsRegistered(address string) (bool, error)
}

// PayloadStore holds content-addressed attestation payloads, mirroring
// what a pinning service would persist.
type PayloadStore interface {
	PutPayload(cid string, payload []byte) error
	GetPayload(cid string) ([]byte, error)
}

// Store combines every persistence concern the server needs.
type Store interface {
	NonceStore
	CertificateStore
	RoleStore
	PatientStore
	PayloadStore
}
