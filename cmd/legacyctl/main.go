// legacyctl is the operator companion to legacyd: offline Shamir share
// handling, key fingerprinting, and health checks against a running server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "legacyctl",
	Short: "Operator tooling for the legacycore vault service",
	Long: `legacyctl performs the operations that should never pass through the
server: splitting a master key into Shamir shares, recombining deposited
shares, and fingerprinting key material. It also probes a running legacyd.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
