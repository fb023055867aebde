package cmd

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Kr3yzi/medcertify/internal/auth"
	"github.com/Kr3yzi/medcertify/internal/chain"
	"github.com/Kr3yzi/medcertify/internal/config"
	"github.com/Kr3yzi/medcertify/internal/wallet"
	"github.com/Kr3yzi/medcertify/pkg/client"
)

// clientCmd represents the client command
var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "MedCertify CLI client",
	Long: `CLI client for the MedCertify API.

Provides wallet login, certificate issuance and verification, and
administration commands.`,
}

func init() {
	rootCmd.AddCommand(clientCmd)

	clientCmd.PersistentFlags().String("api-url", "", "MedCertify API base URL (default from config)")
	cobra.CheckErr(v.BindPFlag("api.base_url", clientCmd.PersistentFlags().Lookup("api-url")))
}

// newClient creates a configured API client carrying any stored session
// token.
func newClient() (*client.Client, error) {
	c, err := client.New(cfg.API.BaseURL,
		client.WithTimeout(cfg.API.Timeout),
		client.WithUserAgent("medcertify-cli/1.0"),
	)
	if err != nil {
		return nil, err
	}

	store, err := newSessionStore()
	if err != nil {
		return nil, err
	}
	if token, _, err := store.Load(); err == nil {
		c.SetToken(token)
	}

	return c, nil
}

// newSessionStore opens the file-backed session store.
func newSessionStore() (*auth.FileStore, error) {
	path := cfg.Session.File
	if path == "" {
		var err error
		path, err = auth.DefaultSessionPath()
		if err != nil {
			return nil, err
		}
	}
	return auth.NewFileStore(path), nil
}

// newWallet opens the configured keystore.
func newWallet() (*wallet.KeystoreWallet, error) {
	if cfg.Wallet.KeystoreFile == "" {
		return nil, fmt.Errorf("no wallet keystore configured (set wallet.keystore_file)")
	}
	return wallet.OpenKeystore(cfg.Wallet.KeystoreFile, cfg.Wallet.Passphrase)
}

func loadWalletKey(cfg *config.Config) (*ecdsa.PrivateKey, error) {
	if cfg.Wallet.KeystoreFile == "" {
		return nil, fmt.Errorf("no wallet keystore configured (set wallet.keystore_file)")
	}
	w, err := wallet.OpenKeystore(cfg.Wallet.KeystoreFile, cfg.Wallet.Passphrase)
	if err != nil {
		return nil, err
	}
	return w.PrivateKey(), nil
}

func chainContractAddress(cfg *config.Config) common.Address {
	return common.HexToAddress(cfg.Chain.ContractAddress)
}

// newChainRegistry builds the registry the client commands record and
// verify against.
func newChainRegistry(ctx context.Context) (chain.Registry, error) {
	switch cfg.Chain.Mode {
	case "dev":
		return chain.NewDevRegistry(cfg.Chain.DevURL)
	case "rpc":
		key, err := loadWalletKey(cfg)
		if err != nil {
			return nil, err
		}
		return chain.Dial(ctx, cfg.Chain.RPCURL, chainContractAddress(cfg), key)
	default:
		// The dev server embeds its simulator at the API base URL.
		return chain.NewDevRegistry(cfg.API.BaseURL)
	}
}

// newContext creates a context for API calls
func newContext() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
	_ = cancel // We'll let the client handle timeout
	return ctx
}
