package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/gasless/service/db"
	"github.com/brojonat/gasless/service/relay"
)

func listTransfersCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transfers",
		Usage:   "List transfers, newest first",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Filter by current status (INIT, CONFIRMED)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of transfers to show",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of transfers to skip",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			var transfers []*relay.Transfer
			limit, offset := int32(c.Int("limit")), int32(c.Int("offset"))
			if statusFilter := c.String("status"); statusFilter != "" {
				transfers, err = store.ListTransfersByStatus(context.Background(), relay.Status(statusFilter), limit, offset)
			} else {
				transfers, err = store.ListTransfers(context.Background(), limit, offset)
			}
			if err != nil {
				return fmt.Errorf("failed to list transfers: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(transfers)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMINT\tAMOUNT\tSTATUS\tSIGNATURE\tCREATED")
			for _, transfer := range transfers {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					transfer.ID,
					transfer.MintSymbol,
					transfer.Amount,
					transfer.CurrentStatus(),
					formatOptionalString(transfer.Signature),
					transfer.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d transfers\n", len(transfers))
			return nil
		},
	}
}

func getTransferCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-transfer",
		Usage:     "Get transfer details",
		Aliases:   []string{"get"},
		ArgsUsage: "<transfer-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "by-reference",
				Usage: "Look up by reference id instead of transfer id",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transfer id")
			}

			id := c.Args().First()
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			var transfer *relay.Transfer
			if c.Bool("by-reference") {
				transfer, err = store.GetTransferByReferenceID(context.Background(), id)
			} else {
				transfer, err = store.GetTransfer(context.Background(), id)
			}
			if err != nil {
				return fmt.Errorf("failed to get transfer: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(transfer)
			}

			// Pretty output
			fmt.Printf("ID:             %s\n", transfer.ID)
			fmt.Printf("Reference ID:   %s\n", transfer.ReferenceID)
			fmt.Printf("Sender:         %s\n", transfer.Sender)
			fmt.Printf("Destination:    %s\n", transfer.Destination)
			fmt.Printf("Amount:         %d (%s base units)\n", transfer.Amount, transfer.MintSymbol)
			fmt.Printf("Mint:           %s\n", transfer.Mint)
			fmt.Printf("Fee Payer:      %s\n", transfer.FeePayer)
			fmt.Printf("Relay Fee:      %d base units\n", transfer.FeeBaseUnits)
			fmt.Printf("Est. Net Fee:   %d lamports\n", transfer.EstimatedFeeLamports)
			fmt.Printf("Status:         %s\n", transfer.CurrentStatus())
			fmt.Printf("Signature:      %s\n", formatOptionalString(transfer.Signature))
			if transfer.Slot != nil {
				fmt.Printf("Slot:           %d\n", *transfer.Slot)
			}
			if transfer.TimestampIncluded != nil {
				fmt.Printf("Included At:    %s\n", transfer.TimestampIncluded.Format(time.RFC3339))
			}
			fmt.Printf("Created:        %s\n", transfer.CreatedAt.Format(time.RFC3339))

			fmt.Printf("\nStatus History:\n")
			for _, entry := range transfer.Statuses {
				fmt.Printf("  %s  %s\n", entry.CreatedAt.Format(time.RFC3339), entry.Status)
			}

			return nil
		},
	}
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	// Try to get from parent context first (for global flags)
	dbURL := c.String("database-url")
	if dbURL == "" && c.App != nil {
		// Try environment variable directly if flag not found
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Helper function to format optional string
func formatOptionalString(s *string) string {
	if s != nil && *s != "" {
		return *s
	}
	return "(none)"
}
