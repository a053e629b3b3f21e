package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/scansafe/internal/scanner"
)

var scanRegion string

var scanCmd = &cobra.Command{
	Use:   "scan <barcode>",
	Short: "Scan a single barcode and print the product record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initScanEnv(ctx, "scan")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Scanner.Scan(ctx, args[0], scanner.ScanContext{Region: scanRegion})
		if err != nil {
			return eris.Wrapf(err, "scan %s", args[0])
		}
		if result.NotFound() {
			return eris.Errorf("product %s not found", args[0])
		}

		out, err := json.MarshalIndent(result.Product, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal product")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanRegion, "region", "", "region code for banned-ingredient rules (default from config)")
	rootCmd.AddCommand(scanCmd)
}
