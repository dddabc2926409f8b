package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(caCmd)
}

var caCmd = &cobra.Command{
	Use:   "ca",
	Short: "Generates the root Certificate Authority",
	Long: `Generates a new CA private key and self-signed root certificate.
Existing CA material is always overwritten: re-running this command rotates
the root, and server certificates issued by the previous CA no longer
verify against the new one.`,
	Run: func(cmd *cobra.Command, args []string) {
		defer App.Scratch.Close()
		_, certificate, err := App.CA.IssueCA()
		if err != nil {
			fatal(err)
		}
		color.New(color.FgGreen).Printf("CA certificate generated: %s\n",
			certificate.Subject.CommonName)
	},
}
