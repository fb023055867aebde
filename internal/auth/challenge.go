// Package auth implements the wallet challenge-response login flow, role
// resolution, and the session lifecycle around them.
package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log"

	"github.com/Kr3yzi/medcertify/internal/models"
	"github.com/Kr3yzi/medcertify/internal/wallet"
	"github.com/Kr3yzi/medcertify/pkg/client"
)

var log = logging.Logger("auth")

// challengeMessageFormat is the exact login challenge text. The backend
// recomputes this string byte for byte during signature verification, so it
// must never drift. It is deliberately distinct from the certificate
// signing message.
const challengeMessageFormat = "Sign this message to authenticate with the Health Certificate System. Nonce: %s"

// ChallengeMessage builds the deterministic login message for a nonce.
func ChallengeMessage(nonce string) string {
	return fmt.Sprintf(challengeMessageFormat, nonce)
}

// ChallengeClient requests one-time login nonces and produces signed
// authentication proofs. Nonces are never cached: every Begin call fetches
// a fresh one and each challenge is consumed by exactly one signature.
type ChallengeClient struct {
	api    *client.Client
	wallet wallet.Provider
}

// NewChallengeClient creates a challenge client over the given API client
// and wallet provider.
func NewChallengeClient(api *client.Client, w wallet.Provider) *ChallengeClient {
	return &ChallengeClient{api: api, wallet: w}
}

// Begin requests a fresh nonce for the address and derives the challenge
// message from it.
func (c *ChallengeClient) Begin(ctx context.Context, address common.Address) (*models.Challenge, error) {
	if c.wallet == nil {
		return nil, ErrWalletUnavailable
	}

	resp, err := c.api.GenerateNonce(ctx, address.Hex())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	log.Debugw("challenge issued", "address", address.Hex())

	return &models.Challenge{
		Address: address.Hex(),
		Nonce:   resp.Nonce,
		Message: ChallengeMessage(resp.Nonce),
	}, nil
}

// Sign asks the wallet to sign the challenge message and assembles the
// ephemeral proof. The wallet prompt may block on user interaction; a
// decline surfaces as wallet.ErrUserRejected.
func (c *ChallengeClient) Sign(ctx context.Context, ch *models.Challenge) (*models.AuthProof, error) {
	if c.wallet == nil {
		return nil, ErrWalletUnavailable
	}

	addr := common.HexToAddress(ch.Address)
	sig, err := c.wallet.PersonalSign(ctx, []byte(ch.Message), addr)
	if err != nil {
		if errors.Is(err, wallet.ErrUserRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("signing challenge: %w", err)
	}

	return &models.AuthProof{
		Address:   ch.Address,
		Signature: "0x" + hex.EncodeToString(sig),
		Nonce:     ch.Nonce,
	}, nil
}
