package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/proxyforge/certgen/pkg/app"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the software version",
	Long:  `Displays software build and version details`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Name:\t\t\t%s\n", app.Name)
		fmt.Printf("Version:\t\t%s\n", app.Version)
		fmt.Printf("Repository:\t\t%s\n", app.Repository)
		fmt.Printf("Git Branch:\t\t%s\n", app.GitBranch)
		fmt.Printf("Git Hash:\t\t%s\n", app.GitHash)
		fmt.Printf("Build Date:\t\t%s\n", app.BuildDate)
	},
}
