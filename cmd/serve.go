package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Kr3yzi/medcertify/internal/chain"
	"github.com/Kr3yzi/medcertify/internal/config"
	"github.com/Kr3yzi/medcertify/internal/server"
	"github.com/Kr3yzi/medcertify/internal/storage"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the MedCertify backend: wallet authentication, certificate
issuance and verification endpoints, a local payload gateway and, outside
rpc mode, a chain simulator.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			fx.Provide(
				GetConfig,

				fx.Annotate(
					storage.NewMemoryStore,
					fx.As(new(storage.Store)),
				),

				newRegistry,

				newServer,
			),
			fx.Invoke(runServer),
		)

		app.Run()
		return nil
	},
}

func newRegistry(cfg *config.Config) (chain.Registry, error) {
	switch cfg.Chain.Mode {
	case "dev":
		return chain.NewDevRegistry(cfg.Chain.DevURL)
	case "rpc":
		key, err := loadWalletKey(cfg)
		if err != nil {
			return nil, err
		}
		return chain.Dial(context.Background(), cfg.Chain.RPCURL, chainContractAddress(cfg), key)
	default:
		return chain.NewMemoryRegistry(), nil
	}
}

func newServer(cfg *config.Config, store storage.Store, registry chain.Registry) (*server.Server, error) {
	return server.New(cfg, server.WithStore(store), server.WithRegistry(registry))
}

func runServer(lc fx.Lifecycle, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Server host")
	serveCmd.Flags().Int("port", 8080, "Server port")
	serveCmd.Flags().String("jwt-secret", "", "Secret used to sign bearer tokens")
	serveCmd.Flags().String("chain-mode", "memory", "Certificate registry backend (memory, dev, rpc)")
	serveCmd.Flags().String("chain-rpc-url", "", "JSON-RPC endpoint (rpc mode)")
	serveCmd.Flags().String("chain-contract", "", "Registry contract address (rpc mode)")
	serveCmd.Flags().String("chain-dev-url", "", "Chain simulator base URL (dev mode)")

	cobra.CheckErr(v.BindPFlag("server.host", serveCmd.Flags().Lookup("host")))
	cobra.CheckErr(v.BindPFlag("server.port", serveCmd.Flags().Lookup("port")))
	cobra.CheckErr(v.BindPFlag("server.jwt_secret", serveCmd.Flags().Lookup("jwt-secret")))
	cobra.CheckErr(v.BindPFlag("chain.mode", serveCmd.Flags().Lookup("chain-mode")))
	cobra.CheckErr(v.BindPFlag("chain.rpc_url", serveCmd.Flags().Lookup("chain-rpc-url")))
	cobra.CheckErr(v.BindPFlag("chain.contract_address", serveCmd.Flags().Lookup("chain-contract")))
	cobra.CheckErr(v.BindPFlag("chain.dev_url", serveCmd.Flags().Lookup("chain-dev-url")))
}
