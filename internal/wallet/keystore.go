package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	logging "github.com/ipfs/go-log"
)

var log = logging.Logger("wallet")

// KeystoreWallet signs with a private key loaded from an encrypted geth
// keystore file. It holds exactly one account for the process lifetime.
type KeystoreWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// OpenKeystore decrypts the keystore JSON at path with the given
// passphrase.
func OpenKeystore(path, passphrase string) (*KeystoreWallet, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keystore file (%s): %w", path, err)
	}
	key, err := keystore.DecryptKey(blob, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypting keystore: %w", err)
	}
	w := &KeystoreWallet{
		key:     key.PrivateKey,
		address: crypto.PubkeyToAddress(key.PrivateKey.PublicKey),
	}
	log.Infow("keystore wallet opened", "address", w.address.Hex())
	return w, nil
}

// NewFromKey wraps an already-loaded private key. Used by the dev flows and
// tests.
func NewFromKey(key *ecdsa.PrivateKey) *KeystoreWallet {
	return &KeystoreWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the single account this wallet holds.
func (w *KeystoreWallet) Address() common.Address {
	return w.address
}

// PrivateKey exposes the underlying key for chain transaction signing.
func (w *KeystoreWallet) PrivateKey() *ecdsa.PrivateKey {
	return w.key
}

func (w *KeystoreWallet) Accounts(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []common.Address{w.address}, nil
}

func (w *KeystoreWallet) PersonalSign(ctx context.Context, message []byte, address common.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if address != w.address {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, address.Hex())
	}
	return SignPersonal(w.key, message)
}
