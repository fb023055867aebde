// Package wallet abstracts the Ethereum wallet provider used for
// authentication challenges and certificate signing. Implementations stand
// in for the browser's injected provider: Accounts mirrors
// eth_requestAccounts and PersonalSign mirrors personal_sign, producing
// EIP-191 prefixed signatures that the verifying party can recover with
// RecoverPersonal.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrUnavailable indicates no wallet provider is configured.
	ErrUnavailable = errors.New("wallet provider unavailable")
	// ErrUserRejected indicates the wallet holder declined the signature
	// prompt.
	ErrUserRejected = errors.New("signature request rejected by user")
	// ErrNoAccounts indicates the provider holds no usable account.
	ErrNoAccounts = errors.New("wallet has no accounts")
	// ErrUnknownAccount indicates a signature was requested for an address
	// the provider does not hold.
	ErrUnknownAccount = errors.New("address not held by wallet")
)

// Provider is the wallet surface the rest of the system depends on. Both
// calls may block on user interaction and must honor context cancellation
// for their non-interactive parts.
type Provider interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	PersonalSign(ctx context.Context, message []byte, address common.Address) ([]byte, error)
}

// SignPersonal produces a personal_sign signature over message: a 65-byte
// [R || S || V] signature with V in {27, 28} over the EIP-191 text digest.
func SignPersonal(key *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return nil, fmt.Errorf("signing message: %w", err)
	}
	// Wallet providers report V as 27/28 rather than 0/1.
	sig[64] += 27
	return sig, nil
}

// RecoverPersonal recovers the address that produced a personal_sign
// signature over message. It accepts V as either 0/1 or 27/28.
func RecoverPersonal(message, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(signature))
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recovering signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
