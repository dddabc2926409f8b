package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

func init() {
	rootCmd.AddCommand(issueCmd)
}

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issues a server certificate for the domain",
	Long: `Issues a new server certificate for the configured domain, signed
by the root CA. The configuration profiles and CA material must already
exist; run the config and ca commands first. The domain's previous private
key, if any, is overwritten.`,
	Run: func(cmd *cobra.Command, args []string) {
		defer App.Scratch.Close()
		identity, err := App.CA.IssueLeaf(App.Domain)
		if err != nil {
			fatal(err)
		}
		if App.DebugFlag {
			out, err := yaml.Marshal(identity.Certificate.Subject)
			if err == nil {
				App.Logger.Debugf("issued certificate subject:\n%s", out)
			}
		}
		color.New(color.FgGreen).Printf("Server certificate generated: %s\n",
			identity.CertFile)
	},
}
