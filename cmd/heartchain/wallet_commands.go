package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/heartchain/heartchain/service/chains"
	"github.com/heartchain/heartchain/service/wallet"
)

func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
}

func walletStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the connected account, chain, and balance",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "target-chain",
				Usage:   "Chain ID the session should settle on",
				EnvVars: []string{"TARGET_CHAIN_ID"},
				Value:   chains.ShardeumSphinxChainID,
			},
		},
		Action: func(c *cli.Context) error {
			jsonOutput := c.Bool("json")
			registry := chains.DefaultRegistry()

			provider, err := wallet.NewRPCProvider(c.String("rpc-url"), nil, cliLogger())
			if err != nil {
				return fmt.Errorf("failed to connect to wallet provider: %w", err)
			}
			defer provider.Close()

			session := wallet.NewSession(provider, registry, nil, wallet.Options{
				TargetChainID: c.String("target-chain"),
			}, nil, cliLogger())
			defer session.Disconnect()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := session.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect wallet: %w", err)
			}

			state := session.State()
			networkName := registry.Name(state.ChainID)

			if jsonOutput {
				data, _ := json.Marshal(map[string]interface{}{
					"status":          state.Status.String(),
					"address":         state.Address,
					"chain_id":        state.ChainID,
					"network":         networkName,
					"balance":         state.Balance,
					"correct_network": session.CorrectNetwork(),
				})
				fmt.Println(string(data))
			} else {
				fmt.Printf("Status:  %s\n", state.Status)
				fmt.Printf("Address: %s\n", state.Address)
				fmt.Printf("Network: %s (%s)\n", networkName, state.ChainID)
				fmt.Printf("Balance: %s\n", state.Balance)
				if !session.CorrectNetwork() {
					fmt.Printf("⚠ wallet is not on %s\n", registry.Name(session.TargetChainID()))
				}
			}

			return nil
		},
	}
}

func walletBalanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Show the native token balance of an address",
		ArgsUsage: "ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("address is required")
			}

			address := c.Args().Get(0)
			jsonOutput := c.Bool("json")
			registry := chains.DefaultRegistry()

			provider, err := wallet.NewRPCProvider(c.String("rpc-url"), nil, cliLogger())
			if err != nil {
				return fmt.Errorf("failed to connect to wallet provider: %w", err)
			}
			defer provider.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			chainID, err := provider.ChainID(ctx)
			if err != nil {
				return fmt.Errorf("failed to get chain ID: %w", err)
			}

			wei, err := provider.Balance(ctx, address)
			if err != nil {
				return fmt.Errorf("failed to get balance: %w", err)
			}

			decimals := 18
			symbol := ""
			if n, ok := registry.Get(chainID); ok {
				decimals = n.Decimals
				symbol = n.NativeSymbol
			}
			formatted := wallet.FormatUnits(wei, decimals)

			if jsonOutput {
				data, _ := json.Marshal(map[string]interface{}{
					"address":  address,
					"chain_id": chainID,
					"balance":  formatted,
					"symbol":   symbol,
					"wei":      wei.String(),
				})
				fmt.Println(string(data))
			} else {
				fmt.Printf("%s %s\n", formatted, symbol)
			}

			return nil
		},
	}
}

func walletNetworksCommand() *cli.Command {
	return &cli.Command{
		Name:  "networks",
		Usage: "List the known networks",
		Action: func(c *cli.Context) error {
			registry := chains.DefaultRegistry()
			networks := registry.All()

			if c.Bool("json") {
				data, _ := json.Marshal(networks)
				fmt.Println(string(data))
				return nil
			}

			for _, n := range networks {
				fmt.Printf("%-10s %-24s %s (%d decimals)\n", n.ChainID, n.Name, n.NativeSymbol, n.Decimals)
				fmt.Printf("           RPC:      %s\n", n.RPCURL)
				fmt.Printf("           Explorer: %s\n", n.ExplorerURL)
			}

			return nil
		},
	}
}
