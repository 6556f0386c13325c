package cmd

import (
	"fmt"
	"os"

	"labguard/config"

	"github.com/spf13/cobra"
)

var cfgFile string

// RootCmd is the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:           "labguard",
	Short:         "Lab device presence and usage tracker",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command and is called by main.main().
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./labguard.yaml or /etc/labguard/labguard.yaml)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
