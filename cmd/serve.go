package cmd

import (
	"labguard/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with the presence sweeper and usage-log flusher",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		var app server.App
		if err := app.Initialize(cfg); err != nil {
			return err
		}
		return app.Run(cmd.Context())
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}
