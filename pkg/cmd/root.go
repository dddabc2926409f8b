package cmd

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/proxyforge/certgen/pkg/app"
)

var (
	App        *app.App
	InitParams *app.AppInitParams
)

var rootCmd = &cobra.Command{
	Use:   app.Name,
	Short: "Local CA and server certificate provisioning",
	Long: `Provisions a local root Certificate Authority and issues server
certificates signed by it, so TLS clients that trust the CA accept the
proxy's intercepted connections for the configured domain.

Run without a subcommand to execute the full pipeline: materialize the
configuration profiles, (re)generate the root CA, and issue a server
certificate for the domain. Re-running rotates the CA.`,
	TraverseChildren: true,
}

func init() {

	// Assigned here rather than in the composite literal above to avoid
	// an initialization cycle: the closure calls fatal, which refers
	// back to rootCmd.
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		defer App.Scratch.Close()
		if err := App.CA.EnsureConfig(App.Domain); err != nil {
			fatal(err)
		}
		if _, _, err := App.CA.IssueCA(); err != nil {
			fatal(err)
		}
		identity, err := App.CA.IssueLeaf(App.Domain)
		if err != nil {
			fatal(err)
		}
		color.New(color.FgGreen).Printf("All certificates generated: %s, %s\n",
			identity.KeyFile, identity.CertFile)
	}

	cobra.OnInitialize(func() {
		App = app.NewApp().Init(InitParams)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-quit
			App.Scratch.Close()
			os.Exit(1)
		}()
	})

	InitParams = &app.AppInitParams{}

	rootCmd.PersistentFlags().BoolVarP(&InitParams.Debug, "debug", "d", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&InitParams.Domain, "domain", "api.openai.com", "The domain name to issue a server certificate for")
	rootCmd.PersistentFlags().StringVar(&InitParams.CADir, "ca-dir", "ca", "Certificate Authority data directory")
	rootCmd.PersistentFlags().StringVar(&InitParams.ConfigDir, "config-dir", ".", "Configuration file directory")
	rootCmd.PersistentFlags().StringVar(&InitParams.LogDir, "log-dir", "", "Logging directory. Logs to stdout only when empty")

	viper.BindPFlags(rootCmd.PersistentFlags())
}

// Prints the diagnostic and terminates with a non-zero exit status.
// The scratch set is closed first so ephemeral files are removed on
// the failure path too.
func fatal(err error) {
	App.Scratch.Close()
	color.New(color.FgRed).Fprintln(rootCmd.ErrOrStderr(), err)
	App.Logger.Fatal(err.Error())
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
	return nil
}
