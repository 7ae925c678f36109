package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/rpcgate/internal/control"
)

var (
	resolveNetwork   string
	resolveBlockhash bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Select an endpoint once and print it",
	Run:   runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveNetwork, "network", "devnet", "mainnet-beta, testnet or devnet")
	resolveCmd.Flags().BoolVar(&resolveBlockhash, "blockhash", false, "also resolve a fresh blockhash")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg, os.Stderr)

	ctx := context.Background()
	app, err := control.NewGateway(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize gateway", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	res := app.Resolve(ctx, resolveNetwork, resolveBlockhash)

	out := map[string]any{
		"rpc_url": res.RPCURL,
		"network": res.Network.String(),
	}
	if res.Blockhash != nil {
		out["latest_blockhash"] = res.Blockhash.Hash
		out["last_valid_block_height"] = res.Blockhash.LastValidBlockHeight
		out["tier"] = res.Blockhash.Tier
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
