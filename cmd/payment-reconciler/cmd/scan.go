package cmd

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"payment-mail-reconciler-go/internal/app"
	"payment-mail-reconciler-go/internal/service/reconcile"
)

var scanDetail bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan mailboxes once and record matched payments",
	Long: `Scan fetches unread processor notifications from every configured account,
records each matched payment that is not already in the ledger and prints
the run summary as JSON. Running it twice against an unchanged mailbox
records nothing the second time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Reconciler.ScanAndCreatePayments(cmd.Context())
		if err != nil {
			return err
		}
		return writeScanResult(cmd.OutOrStdout(), res, scanDetail)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanDetail, "detail", false, "include per-email items in the output")
}

func writeScanResult(w io.Writer, res *reconcile.ScanResult, detail bool) error {
	out := *res
	if !detail {
		out.Items = nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
