package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var healthAddr string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe a running legacyd instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(healthAddr + "/healthz")
		if err != nil {
			return fmt.Errorf("probe %s: %w", healthAddr, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("probe %s: status %d", healthAddr, resp.StatusCode)
		}
		var body struct {
			Success bool `json:"success"`
			Data    struct {
				Status string `json:"status"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode health response: %w", err)
		}
		fmt.Printf("%s: %s\n", healthAddr, body.Data.Status)
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthAddr, "addr", "http://localhost:8080", "base URL of the legacyd instance")
	rootCmd.AddCommand(healthCmd)
}
