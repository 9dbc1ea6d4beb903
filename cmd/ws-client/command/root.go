package command

// root.go defines the root command of the gatehub client.

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string // WebSocket endpoint
	token     string // authentication token(jwt)
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gatehub",
	Short: "gatehub - watch process updates pushed over WebSocket",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err) // Print error to standard error
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "ws://localhost:8080/ws", "WebSocket endpoint")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("GATEHUB_TOKEN"), "JWT access token (or GATEHUB_TOKEN)")
}
