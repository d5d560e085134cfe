package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/heartchain/heartchain/client"
	"github.com/heartchain/heartchain/service/chains"
	"github.com/heartchain/heartchain/service/donation"
	"github.com/heartchain/heartchain/service/ledger"
	"github.com/heartchain/heartchain/service/wallet"
)

func donateCommand() *cli.Command {
	return &cli.Command{
		Name:      "donate",
		Usage:     "Make a donation to a campaign",
		ArgsUsage: "CAMPAIGN_ID AMOUNT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "title",
				Usage: "Campaign title recorded on the transaction",
			},
			&cli.StringFlag{
				Name:    "target-chain",
				Usage:   "Chain ID the donation should settle on",
				EnvVars: []string{"TARGET_CHAIN_ID"},
				Value:   chains.ShardeumSphinxChainID,
			},
			&cli.StringFlag{
				Name:    "flag-path",
				Usage:   "Path to the wallet connection flag file",
				EnvVars: []string{"FLAG_PATH"},
				Value:   "wallet.json",
			},
			&cli.BoolFlag{
				Name:  "no-replicate",
				Usage: "Keep the donation local, skip the replication service",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("campaign ID and amount are required")
			}

			campaignID := c.Args().Get(0)
			var amount int64
			if _, err := fmt.Sscanf(c.Args().Get(1), "%d", &amount); err != nil {
				return fmt.Errorf("invalid amount %q", c.Args().Get(1))
			}
			title := c.String("title")
			if title == "" {
				title = campaignID
			}
			jsonOutput := c.Bool("json")

			logger := cliLogger()
			registry := chains.DefaultRegistry()

			provider, err := wallet.NewRPCProvider(c.String("rpc-url"), nil, logger)
			if err != nil {
				return fmt.Errorf("failed to connect to wallet provider: %w", err)
			}
			defer provider.Close()

			flags := wallet.NewFileFlagStore(c.String("flag-path"))
			session := wallet.NewSession(provider, registry, flags, wallet.Options{
				TargetChainID: c.String("target-chain"),
			}, nil, logger)
			defer session.Disconnect()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			if err := session.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect wallet: %w", err)
			}

			if !session.CorrectNetwork() {
				if err := session.SwitchNetwork(ctx, session.TargetChainID()); err != nil {
					return fmt.Errorf("failed to switch network: %w", err)
				}
			}

			var replicator donation.Replicator
			if !c.Bool("no-replicate") {
				replicator = client.NewClient(c.String("server-url"), nil, logger)
			}

			l := ledger.NewLedger(c.String("ledger-path"), nil, logger)
			flow := donation.NewFlow(session, l, registry, replicator, donation.Options{}, nil, logger)

			tx, err := flow.Donate(ctx, campaignID, title, amount)
			if err != nil {
				if errors.Is(err, donation.ErrUserRejected) {
					return fmt.Errorf("donation cancelled: signature rejected")
				}
				return fmt.Errorf("donation failed: %w", err)
			}

			if jsonOutput {
				data, _ := json.Marshal(tx)
				fmt.Println(string(data))
			} else {
				fmt.Printf("✓ Donation confirmed\n")
				printTransaction(tx)
			}

			return nil
		},
	}
}
