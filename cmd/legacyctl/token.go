package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"legacycore/internal/core"
)

var tokenHashCmd = &cobra.Command{
	Use:   "token-hash <token>",
	Short: "Derive the stored hash of a third-party signal token",
	Long: `Prints the hash form of a signal token for registration on an owner
account. The plaintext token goes to the signaling party; only the hash is
stored server-side.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(core.HashSignalToken(args[0]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenHashCmd)
}
