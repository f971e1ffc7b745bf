package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"payment-mail-reconciler-go/internal/app"
	"payment-mail-reconciler-go/internal/model"
)

var (
	resolveTenant uint
	resolvePeriod string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve-notices",
	Short: "Acknowledge a tenant's notices if a period is fully paid",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateResolveFlags(resolveTenant, resolvePeriod)
	},
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

		period := model.Period(resolvePeriod)
		if period == "" {
			period = model.PeriodOf(time.Now(), a.Ledger.Location())
		}

		res, err := a.Resolver.ResolveIfPaid(cmd.Context(), resolveTenant, period)
		if err != nil {
			return err
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
			"resolved":  res.Resolved,
			"noticeIds": res.NoticeIDs,
		})
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().UintVar(&resolveTenant, "tenant", 0, "tenant id (required)")
	resolveCmd.Flags().StringVar(&resolvePeriod, "period", "", "billing period YYYY-MM (default current month)")
	resolveCmd.MarkFlagRequired("tenant")
}

func validateResolveFlags(tenant uint, period string) error {
	if tenant == 0 {
		return fmt.Errorf("--tenant must be a positive tenant id")
	}
	if period != "" {
		if _, err := model.ParsePeriod(period); err != nil {
			return fmt.Errorf("--period: %w", err)
		}
	}
	return nil
}
