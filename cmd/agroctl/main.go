// Package main is the entry point for the agroctl command-line client.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/RavenWorks247/AgroPredict/internal/client"
)

// Global flags.
var (
	serverURL string
	userID    string
	sessionID string
	timeout   time.Duration
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agroctl",
		Short: "Terminal client for the AgroPredict crop advisor",
		Long: `agroctl asks the AgroPredict backend for crop suitability analyses,
continues the conversation about them, and manages saved sessions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&serverURL, "server", envOr("AGROPREDICT_URL", "http://localhost:8080"), "Backend or relay base URL")
	root.PersistentFlags().StringVar(&userID, "user", os.Getenv("AGROPREDICT_USER"), "User id")
	root.PersistentFlags().StringVar(&sessionID, "session", "", "Session id")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Request timeout")

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newContextCmd())
	root.AddCommand(newClearCmd())
	root.AddCommand(newSessionsCmd())
	root.AddCommand(newNewCmd())

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() *client.Client {
	return client.New(serverURL, timeout)
}

func requireUser() error {
	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}

func requireSession() error {
	if err := requireUser(); err != nil {
		return err
	}
	if sessionID == "" {
		return fmt.Errorf("--session is required (run 'agroctl new' for a fresh id)")
	}
	return nil
}
