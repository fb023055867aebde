package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MemoryRegistry simulates the registry contract in memory. It backs the
// dev server's chain endpoints and the tests.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[common.Address]map[string]common.Hash
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[common.Address]map[string]common.Hash),
	}
}

func (r *MemoryRegistry) IssueCertificate(ctx context.Context, patient common.Address, certHash string) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	if certHash == "" {
		return common.Hash{}, fmt.Errorf("cert hash cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[patient] == nil {
		r.entries[patient] = make(map[string]common.Hash)
	}
	// Re-issuing the same certificate returns the original transaction.
	if tx, ok := r.entries[patient][certHash]; ok {
		return tx, nil
	}

	tx := crypto.Keccak256Hash(patient.Bytes(), []byte(certHash))
	r.entries[patient][certHash] = tx

	log.Debugw("simulated issuance", "patient", patient.Hex(), "cert_hash", certHash, "tx", tx.Hex())
	return tx, nil
}

func (r *MemoryRegistry) HasCertificate(ctx context.Context, patient common.Address, certHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[patient][certHash]
	return ok, nil
}
