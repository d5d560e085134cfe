package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "heartchain",
		Usage: "Crypto donation platform CLI",
		Description: `A command-line tool for making donations and inspecting the local
transaction ledger and the replication service.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Wallet inspection commands
			{
				Name:  "wallet",
				Usage: "Wallet inspection commands",
				Subcommands: []*cli.Command{
					walletStatusCommand(),
					walletBalanceCommand(),
					walletNetworksCommand(),
				},
			},
			// Local ledger commands
			{
				Name:  "ledger",
				Usage: "Local transaction ledger commands",
				Subcommands: []*cli.Command{
					ledgerListCommand(),
					ledgerShowCommand(),
					ledgerSyncCommand(),
				},
			},
			// Donation flow
			donateCommand(),
			// Campaign aggregates from the replication service
			{
				Name:  "campaign",
				Usage: "Campaign aggregate commands",
				Subcommands: []*cli.Command{
					campaignTotalCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "JSON-RPC endpoint of the wallet provider",
				EnvVars: []string{"WALLET_RPC_URL"},
				Value:   "http://localhost:8545",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Ledger replication service URL",
				EnvVars: []string{"REPLICATION_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "ledger-path",
				Usage:   "Path to the local transaction ledger file",
				EnvVars: []string{"LEDGER_PATH"},
				Value:   "transactions.json",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
