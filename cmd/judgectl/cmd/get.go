package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// NewGetCommand fetches and prints one submission by id.
func NewGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a submission by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			client := &http.Client{Timeout: 10 * time.Second}

			resp, err := client.Get(fmt.Sprintf("%s/submissions/%s", url, args[0]))
			if err != nil {
				return fmt.Errorf("get: %w", err)
			}
			defer resp.Body.Close()

			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 300 {
				return fmt.Errorf("get failed with status %d: %s", resp.StatusCode, string(raw))
			}

			var sub submissionResponse
			if err := json.Unmarshal(raw, &sub); err != nil {
				return err
			}
			printSubmission(sub)
			return nil
		},
	}
}
