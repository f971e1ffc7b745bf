package cmd

import (
	"github.com/spf13/cobra"

	"payment-mail-reconciler-go/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scan scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return app.Run(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
