package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/heartchain/heartchain/client"
	"github.com/heartchain/heartchain/service/ledger"
)

func ledgerListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List transactions in the local ledger, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "campaign",
				Usage: "Only show transactions for this campaign ID",
			},
			&cli.StringFlag{
				Name:  "donor",
				Usage: "Only show transactions from this donor address",
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
				Aliases: []string{"jq"},
			},
		},
		Action: func(c *cli.Context) error {
			campaign := c.String("campaign")
			donor := c.String("donor")
			jqFilters := c.StringSlice("must-jq")
			jsonOutput := c.Bool("json")

			// Compile jq filters
			compiledJQFilters := make([]*gojq.Code, len(jqFilters))
			for i, filter := range jqFilters {
				query, err := gojq.Parse(filter)
				if err != nil {
					return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
				}
				compiledJQFilters[i], err = gojq.Compile(query)
				if err != nil {
					return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
				}
			}

			l := ledger.NewLedger(c.String("ledger-path"), nil, cliLogger())

			var txs []*ledger.Transaction
			if donor != "" {
				txs = l.TransactionsFor(donor)
			} else {
				txs = l.Transactions()
			}

			var matched []*ledger.Transaction
			for _, tx := range txs {
				if campaign != "" && tx.CampaignID != campaign {
					continue
				}
				ok, err := matchesJQFilters(tx, compiledJQFilters)
				if err != nil {
					return err
				}
				if ok {
					matched = append(matched, tx)
				}
			}

			if jsonOutput {
				data, _ := json.Marshal(matched)
				fmt.Println(string(data))
				return nil
			}

			if len(matched) == 0 {
				fmt.Println("No transactions found")
				return nil
			}

			for _, tx := range matched {
				printTransaction(tx)
			}
			fmt.Printf("%d transaction(s)\n", len(matched))

			return nil
		},
	}
}

func ledgerShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Aliases:   []string{"get"},
		Usage:     "Show one transaction from the local ledger",
		ArgsUsage: "TX_HASH",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("transaction hash is required")
			}

			hash := c.Args().Get(0)
			l := ledger.NewLedger(c.String("ledger-path"), nil, cliLogger())

			tx, err := l.Get(hash)
			if err != nil {
				return fmt.Errorf("failed to get transaction: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.Marshal(tx)
				fmt.Println(string(data))
				return nil
			}

			printTransaction(tx)
			return nil
		},
	}
}

func ledgerSyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Replicate the local ledger to the replication service",
		Action: func(c *cli.Context) error {
			l := ledger.NewLedger(c.String("ledger-path"), nil, cliLogger())
			cl := client.NewClient(c.String("server-url"), nil, cliLogger())

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			var synced, failed int
			// Oldest first so the server sees statuses in the order they
			// happened.
			txs := l.Transactions()
			for i := len(txs) - 1; i >= 0; i-- {
				if err := cl.Replicate(ctx, txs[i]); err != nil {
					fmt.Printf("✗ %s: %v\n", txs[i].Hash, err)
					failed++
					continue
				}
				synced++
			}

			fmt.Printf("Synced %d transaction(s), %d failed\n", synced, failed)
			if failed > 0 {
				return fmt.Errorf("%d transaction(s) failed to replicate", failed)
			}
			return nil
		},
	}
}

func campaignTotalCommand() *cli.Command {
	return &cli.Command{
		Name:      "total",
		Usage:     "Show the confirmed donation total for a campaign",
		ArgsUsage: "CAMPAIGN_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("campaign ID is required")
			}

			campaignID := c.Args().Get(0)
			cl := client.NewClient(c.String("server-url"), nil, cliLogger())

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			total, err := cl.Total(ctx, campaignID)
			if err != nil {
				return fmt.Errorf("failed to get campaign total: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.Marshal(total)
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Campaign:  %s\n", total.CampaignID)
			fmt.Printf("Raised:    %d\n", total.Raised)
			fmt.Printf("Donations: %d\n", total.Donations)

			return nil
		},
	}
}

// matchesJQFilters runs every compiled filter against the transaction's JSON
// form. All filters must evaluate to a truthy value.
func matchesJQFilters(tx *ledger.Transaction, filters []*gojq.Code) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}

	// Round-trip through JSON so jq sees the wire field names.
	data, err := json.Marshal(tx)
	if err != nil {
		return false, fmt.Errorf("failed to marshal transaction: %w", err)
	}
	var txJSON interface{}
	if err := json.Unmarshal(data, &txJSON); err != nil {
		return false, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}

	for _, code := range filters {
		iter := code.Run(txJSON)
		v, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if _, isErr := v.(error); isErr {
			return false, nil
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq semantics: false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

func printTransaction(tx *ledger.Transaction) {
	fmt.Printf("%s\n", tx.Hash)
	fmt.Printf("  Campaign:  %s (%s)\n", tx.CampaignTitle, tx.CampaignID)
	fmt.Printf("  Amount:    %d\n", tx.Amount)
	fmt.Printf("  Donor:     %s\n", tx.DonorAddress)
	fmt.Printf("  Status:    %s\n", tx.Status)
	fmt.Printf("  Chain:     %s\n", tx.ChainID)
	fmt.Printf("  Time:      %s\n", tx.Timestamp.Format(time.RFC3339))
	if tx.BlockNumber != nil {
		fmt.Printf("  Block:     %d\n", *tx.BlockNumber)
	}
	if tx.GasUsed != nil {
		fmt.Printf("  Gas used:  %d\n", *tx.GasUsed)
	}
	if tx.ExplorerURL != "" {
		fmt.Printf("  Explorer:  %s\n", tx.ExplorerURL)
	}
	fmt.Println()
}
