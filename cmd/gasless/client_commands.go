package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/gasless/client"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the relay service",
		Subcommands: []*cli.Command{
			createTransferClientCommand(),
			awaitConfirmationCommand(),
			quoteFeeCommand(),
		},
	}
}

func createTransferClientCommand() *cli.Command {
	return &cli.Command{
		Name:      "create-transfer",
		Usage:     "Request a relayed transfer",
		ArgsUsage: "SENDER DESTINATION AMOUNT MINT_SYMBOL",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "print-tx",
				Usage: "Print the base64 signed transaction to stdout",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 4 {
				return fmt.Errorf("requires four arguments: sender destination amount mint-symbol")
			}

			cl := getClient(c)
			transfer, err := cl.CreateTransfer(context.Background(), client.CreateTransferRequest{
				Sender:      c.Args().Get(0),
				Destination: c.Args().Get(1),
				Amount:      c.Args().Get(2),
				MintSymbol:  c.Args().Get(3),
			})
			if err != nil {
				return fmt.Errorf("failed to create transfer: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(transfer)
			}

			fmt.Printf("✓ Transfer created\n")
			fmt.Printf("  ID:          %s\n", transfer.ID)
			fmt.Printf("  Reference:   %s\n", transfer.ReferenceID)
			fmt.Printf("  Amount:      %d %s base units\n", transfer.Amount, transfer.MintSymbol)
			fmt.Printf("  Relay Fee:   %d base units\n", transfer.FeeBaseUnits)
			fmt.Printf("  Est. Fee:    %d lamports\n", transfer.EstimatedFeeLamports)
			fmt.Printf("  Status:      %s\n", transfer.Status)
			if c.Bool("print-tx") {
				fmt.Printf("\n%s\n", base64.StdEncoding.EncodeToString(transfer.SignedTransaction))
			}
			return nil
		},
	}
}

func awaitConfirmationCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until a transfer is confirmed on chain",
		ArgsUsage: "TRANSFER_ID",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long to wait for confirmation",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Value: 2 * time.Second,
				Usage: "How often to poll the transfer status",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transfer id")
			}

			id := c.Args().First()
			jsonOutput := c.Bool("json")

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Waiting for transfer %s to confirm...\n", id)
				fmt.Fprintf(os.Stderr, "  Timeout: %v\n\n", c.Duration("timeout"))
			}

			cl := getClient(c)
			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			transfer, err := cl.AwaitConfirmation(ctx, id, c.Duration("poll-interval"))
			if err != nil {
				return fmt.Errorf("failed to await confirmation: %w", err)
			}

			if jsonOutput {
				return outputJSON(transfer)
			}

			fmt.Printf("✓ Transfer confirmed\n")
			fmt.Printf("  ID:        %s\n", transfer.ID)
			fmt.Printf("  Signature: %s\n", formatOptionalString(transfer.Signature))
			if transfer.Slot != nil {
				fmt.Printf("  Slot:      %d\n", *transfer.Slot)
			}
			if transfer.TimestampIncluded != nil {
				fmt.Printf("  Included:  %s\n", transfer.TimestampIncluded.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func quoteFeeCommand() *cli.Command {
	return &cli.Command{
		Name:      "quote-fee",
		Usage:     "Quote the current network fee for a mint",
		ArgsUsage: "MINT_SYMBOL",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: mint symbol")
			}

			cl := getClient(c)
			quote, err := cl.QuoteFee(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to quote fee: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(quote)
			}

			fmt.Printf("Mint:          %s\n", quote.MintSymbol)
			fmt.Printf("Estimated Fee: %d lamports\n", quote.EstimatedFeeLamports)
			if quote.SOLPriceUSD != "" {
				fmt.Printf("SOL Price:     $%s\n", quote.SOLPriceUSD)
				fmt.Printf("Estimated USD: $%s\n", quote.EstimatedFeeUSD)
			}
			return nil
		},
	}
}

// getClient builds an HTTP client for the relay service from global flags.
func getClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return client.NewClient(c.String("server-url"), httpClient, logger)
}
