package cmd

import (
	"fmt"

	"labguard/internal/logs"
	"labguard/internal/tracker"
	"labguard/server"

	"github.com/spf13/cobra"
)

var provisionFlags tracker.Device

// provisionCmd creates an unbound slot that an agent can later claim via /api/bind.
var provisionCmd = &cobra.Command{
	Use:   "provision --system-id ID [--city ..] [--college ..] [--lab ..]",
	Short: "Create an unbound device slot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Driver == "" {
			return errNoDatabase
		}
		store, gdb, err := server.OpenStore(cfg)
		if err != nil {
			return err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			defer sqlDB.Close()
		}

		svc := tracker.NewService(store, tracker.Options{Logger: logs.Logger})
		d, err := svc.Provision(cmd.Context(), provisionFlags)
		if err != nil {
			return fmt.Errorf("provision %s: %w", provisionFlags.SystemID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "provisioned %s (%s / %s / %s)\n", d.SystemID, d.City, d.College, d.LabName)
		return nil
	},
}

func init() {
	f := provisionCmd.Flags()
	f.StringVar(&provisionFlags.SystemID, "system-id", "", "slot identifier (required)")
	f.StringVar(&provisionFlags.City, "city", "", "city")
	f.StringVar(&provisionFlags.Tehsil, "tehsil", "", "tehsil")
	f.StringVar(&provisionFlags.College, "college", "", "college")
	f.StringVar(&provisionFlags.LabName, "lab", "", "lab name")
	f.StringVar(&provisionFlags.PCName, "pc-name", "", "initial pc name")
	_ = provisionCmd.MarkFlagRequired("system-id")
	RootCmd.AddCommand(provisionCmd)
}
