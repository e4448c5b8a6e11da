package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/welldanyogia/webrana-confchat/internal/client"
)

var (
	version = "dev"
	commit  = "unknown"
)

// settings resolves flags first, then CONFCHAT_* environment variables
var settings = viper.New()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "confchat",
	Short: "Conference chat client",
	Long: `confchat talks to a ConfChat server: it watches unread counts,
reads and answers paper conversations, fetches attachments and seeds
users and papers for local setups.`,
	Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Disable completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Global flags
	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "ConfChat server URL (env CONFCHAT_URL)")
	rootCmd.PersistentFlags().String("token", "", "bearer token (env CONFCHAT_TOKEN)")

	settings.SetEnvPrefix("CONFCHAT")
	settings.AutomaticEnv()
	_ = settings.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
	_ = settings.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

// newClient builds an API client from the resolved url and token
func newClient() (*client.Client, error) {
	token := settings.GetString("token")
	if token == "" {
		return nil, fmt.Errorf("no token: pass --token or set CONFCHAT_TOKEN")
	}
	return client.New(settings.GetString("url"), client.StaticToken(token))
}
