package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"legacycore/internal/crypto"
	"legacycore/internal/shamir"
)

var (
	splitShares    int
	splitThreshold int
)

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Split and combine Shamir key shares",
}

var shareSplitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split a secret from stdin into hex-encoded shares",
	Long: `Reads the secret from stdin and prints one share per line as
index:hex. Any threshold-sized subset of the printed shares reconstructs the
secret; fewer reveal nothing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := readStdin()
		if err != nil {
			return err
		}
		shares, err := shamir.Split(secret, splitShares, splitThreshold)
		crypto.Zero(secret)
		if err != nil {
			return err
		}
		for _, share := range shares {
			fmt.Printf("%d:%s\n", share.Index, hex.EncodeToString(share.Bytes))
		}
		return nil
	},
}

var shareCombineCmd = &cobra.Command{
	Use:   "combine <index:hex> [index:hex ...]",
	Short: "Reconstruct a secret from shares",
	Args:  cobra.MinimumNArgs(shamir.MinThreshold),
	RunE: func(cmd *cobra.Command, args []string) error {
		shares := make([]shamir.Share, 0, len(args))
		for _, arg := range args {
			share, err := parseShare(arg)
			if err != nil {
				return err
			}
			shares = append(shares, share)
		}
		secret, err := shamir.Combine(shares)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(secret)
		crypto.Zero(secret)
		return err
	},
}

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Print the fingerprint of key material read from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := readStdin()
		if err != nil {
			return err
		}
		fmt.Println(crypto.Fingerprint(secret))
		crypto.Zero(secret)
		return nil
	},
}

func parseShare(arg string) (shamir.Share, error) {
	idx, raw, ok := strings.Cut(arg, ":")
	if !ok {
		return shamir.Share{}, fmt.Errorf("malformed share %q, want index:hex", arg)
	}
	var index int
	if _, err := fmt.Sscanf(idx, "%d", &index); err != nil {
		return shamir.Share{}, fmt.Errorf("malformed share index %q", idx)
	}
	bytes, err := hex.DecodeString(raw)
	if err != nil {
		return shamir.Share{}, fmt.Errorf("malformed share payload %q: %w", raw, err)
	}
	return shamir.Share{Index: index, Bytes: bytes}, nil
}

func readStdin() ([]byte, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	return data, nil
}

func init() {
	shareSplitCmd.Flags().IntVarP(&splitShares, "shares", "n", 5, "number of shares to issue")
	shareSplitCmd.Flags().IntVarP(&splitThreshold, "threshold", "k", 3, "shares required to reconstruct")
	shareCmd.AddCommand(shareSplitCmd)
	shareCmd.AddCommand(shareCombineCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(fingerprintCmd)
}
