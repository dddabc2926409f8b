package cmd

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Materializes the configuration profiles",
	Long: `Creates the certificate store directory and writes the default
request template, extension profiles, and the domain's subject alternative
name and subject files. Files that already exist are left untouched.`,
	Run: func(cmd *cobra.Command, args []string) {
		defer App.Scratch.Close()
		if err := App.CA.EnsureConfig(App.Domain); err != nil {
			fatal(err)
		}
	},
}
