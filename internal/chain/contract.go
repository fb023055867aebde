package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// registryABI is the minimal surface of the HealthCertificateRBAC contract
// this client uses.
const registryABI = `[
	{"type":"function","name":"issueCertificate","stateMutability":"nonpayable","inputs":[{"name":"patient","type":"address"},{"name":"certHash","type":"string"}],"outputs":[]},
	{"type":"function","name":"hasCertificate","stateMutability":"view","inputs":[{"name":"patient","type":"address"},{"name":"certHash","type":"string"}],"outputs":[{"name":"","type":"bool"}]}
]`

// ContractRegistry talks to the deployed registry contract over JSON-RPC.
type ContractRegistry struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	chainID  *big.Int
	key      *ecdsa.PrivateKey
}

// Dial connects to the node at rpcURL and binds the registry contract at
// contractAddress. The key signs issuance transactions.
func Dial(ctx context.Context, rpcURL string, contractAddress common.Address, key *ecdsa.PrivateKey) (*ContractRegistry, error) {
	ethClient, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing chain node (%s): %w", rpcURL, err)
	}

	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching chain ID: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("parsing registry ABI: %w", err)
	}

	log.Infow("connected to certificate registry",
		"rpc", rpcURL,
		"contract", contractAddress.Hex(),
		"chain_id", chainID.String())

	return &ContractRegistry{
		client:   ethClient,
		contract: bind.NewBoundContract(contractAddress, parsed, ethClient, ethClient, ethClient),
		chainID:  chainID,
		key:      key,
	}, nil
}

// IssueCertificate submits the issuance transaction and waits for it to be
// mined. A reverted receipt is reported as an error; the transaction hash
// is only returned for a successful receipt.
func (r *ContractRegistry) IssueCertificate(ctx context.Context, patient common.Address, certHash string) (common.Hash, error) {
	if r.key == nil {
		return common.Hash{}, fmt.Errorf("no transaction signing key configured")
	}

	opts, err := bind.NewKeyedTransactorWithChainID(r.key, r.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("building transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := r.contract.Transact(opts, "issueCertificate", patient, certHash)
	if err != nil {
		return common.Hash{}, fmt.Errorf("submitting issuance transaction: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, r.client, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("waiting for transaction %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Hash{}, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}

	log.Infow("certificate recorded on-chain",
		"patient", patient.Hex(),
		"cert_hash", certHash,
		"tx", tx.Hash().Hex())

	return tx.Hash(), nil
}

// HasCertificate performs the read-only registry lookup.
func (r *ContractRegistry) HasCertificate(ctx context.Context, patient common.Address, certHash string) (bool, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "hasCertificate", patient, certHash); err != nil {
		return false, fmt.Errorf("registry lookup: %w", err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("unexpected registry response arity %d", len(out))
	}

	found := *abi.ConvertType(out[0], new(bool)).(*bool)
	return found, nil
}

// Close releases the underlying RPC connection.
func (r *ContractRegistry) Close() {
	r.client.Close()
}
