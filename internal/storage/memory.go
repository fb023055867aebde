package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log"
	"github.com/patrickmn/go-cache"

	"github.com/Kr3yzi/medcertify/internal/models"
)

var log = logging.Logger("storage/memory")

const (
	// DefaultNonceTTL bounds how long an unconsumed login nonce stays
	// valid.
	DefaultNonceTTL = 5 * time.Minute

	nonceSweepInterval = 10 * time.Minute
)

// MemoryStore is the in-memory implementation of Store. Nonces live in a
// TTL cache; everything else is plain maps. Safe for concurrent use.
type MemoryStore struct {
	nonces *cache.Cache

	mu           sync.RWMutex
	certificates map[string]*models.CertificateRecord
	roles        map[string]models.RoleSet
	patients     map[string]models.PatientRegisterRequest
	payloads     map[string][]byte
}

// NewMemoryStore creates an empty in-memory store with the default nonce
// TTL.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithTTL(DefaultNonceTTL)
}

// NewMemoryStoreWithTTL creates an in-memory store whose nonces expire
// after ttl.
func NewMemoryStoreWithTTL(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		nonces:       cache.New(ttl, nonceSweepInterval),
		certificates: make(map[string]*models.CertificateRecord),
		roles:        make(map[string]models.RoleSet),
		patients:     make(map[string]models.PatientRegisterRequest),
		payloads:     make(map[string][]byte),
	}
}

// canonicalAddress folds the hex-case variance of wallet addresses so map
// lookups are case-insensitive.
func canonicalAddress(address string) string {
	return strings.ToLower(common.HexToAddress(address).Hex())
}

func (m *MemoryStore) Issue(address string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("address cannot be empty")
	}

	nonce := uuid.NewString()
	// A fresh nonce replaces any outstanding one for the address.
	m.nonces.SetDefault(canonicalAddress(address), nonce)

	log.Debugw("nonce issued", "address", address)
	return nonce, nil
}

func (m *MemoryStore) Consume(address, nonce string) error {
	key := canonicalAddress(address)
	stored, found := m.nonces.Get(key)
	// One shot: the nonce is gone after the first attempt either way.
	m.nonces.Delete(key)

	if !found || nonce == "" || stored.(string) != nonce {
		return ErrNonceInvalid
	}
	return nil
}

func (m *MemoryStore) Create(record *models.CertificateRecord) error {
	if record.CertHash == "" {
		return fmt.Errorf("certificate hash cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Identical content hashes identical records; re-submission is a
	// no-op rather than a duplicate.
	if existing, ok := m.certificates[record.CertHash]; ok {
		*record = *existing
		return nil
	}

	stored := *record
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.PatientAddress = canonicalAddress(stored.PatientAddress)
	if stored.IssuedBy != "" {
		stored.IssuedBy = canonicalAddress(stored.IssuedBy)
	}
	now := time.Now()
	if stored.IssuedAt.IsZero() {
		stored.IssuedAt = now
	}
	stored.UpdatedAt = now

	m.certificates[stored.CertHash] = &stored
	*record = stored

	log.Debugw("certificate created",
		"cert_hash", stored.CertHash,
		"patient", stored.PatientAddress,
		"cert_type", stored.CertType)
	return nil
}

func (m *MemoryStore) GetByHash(certHash string) (*models.CertificateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.certificates[certHash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, certHash)
	}
	copied := *record
	return &copied, nil
}

func (m *MemoryStore) AttachSignature(certHash, signature string) error {
	if signature == "" {
		return fmt.Errorf("signature cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.certificates[certHash]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, certHash)
	}

	switch record.Signature {
	case "", signature:
		record.Signature = signature
		record.UpdatedAt = time.Now()
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrSignatureConflict, certHash)
	}
}

func (m *MemoryStore) RecordTransaction(certHash, transactionHash string) error {
	if transactionHash == "" {
		return fmt.Errorf("transaction hash cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.certificates[certHash]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, certHash)
	}

	switch record.TransactionHash {
	case "", transactionHash:
		record.TransactionHash = transactionHash
		record.UpdatedAt = time.Now()
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrTransactionConflict, certHash)
	}
}

func (m *MemoryStore) List() ([]models.CertificateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]models.CertificateRecord, 0, len(m.certificates))
	for _, record := range m.certificates {
		records = append(records, *record)
	}
	sortRecords(records)
	return records, nil
}

func (m *MemoryStore) ListByPatient(address string) ([]models.CertificateRecord, error) {
	key := canonicalAddress(address)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []models.CertificateRecord
	for _, record := range m.certificates {
		if record.PatientAddress == key {
			records = append(records, *record)
		}
	}
	sortRecords(records)
	return records, nil
}

// sortRecords orders newest first, hash as tiebreak for stable output.
func sortRecords(records []models.CertificateRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].IssuedAt.Equal(records[j].IssuedAt) {
			return records[i].IssuedAt.After(records[j].IssuedAt)
		}
		return records[i].CertHash < records[j].CertHash
	})
}

func (m *MemoryStore) Grant(address string, role models.Role) error {
	if !validRole(role) {
		return fmt.Errorf("unknown role: %s", role)
	}

	key := canonicalAddress(address)

	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.roles[key]
	if !ok {
		set = make(models.RoleSet)
		m.roles[key] = set
	}
	set[role] = true

	log.Infow("role granted", "address", address, "role", role)
	return nil
}

func (m *MemoryStore) Roles(address string) (models.RoleSet, error) {
	key := canonicalAddress(address)

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Every known role is reported explicitly, held or not.
	set := make(models.RoleSet, len(models.RolePriority))
	for _, role := range models.RolePriority {
		set[role] = m.roles[key][role]
	}
	return set, nil
}

func validRole(role models.Role) bool {
	for _, known := range models.RolePriority {
		if role == known {
			return true
		}
	}
	return false
}

func (m *MemoryStore) Register(req models.PatientRegisterRequest) error {
	if req.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	key := canonicalAddress(req.Address)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.patients[key]; ok {
		return fmt.Errorf("%w: %s", ErrPatientExists, req.Address)
	}
	m.patients[key] = req

	log.Infow("patient registered", "address", req.Address)
	return nil
}

func (m *MemoryStore) IsRegistered(address string) (bool, error) {
	key := canonicalAddress(address)

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.patients[key]
	return ok, nil
}

func (m *MemoryStore) PutPayload(cid string, payload []byte) error {
	if cid == "" {
		return fmt.Errorf("cid cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(payload))
	copy(stored, payload)
	m.payloads[cid] = stored
	return nil
}

func (m *MemoryStore) GetPayload(cid string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	payload, ok := m.payloads[cid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cid)
	}
	returned := make([]byte, len(payload))
	copy(returned, payload)
	return returned, nil
}
