package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

type page struct {
	Items       []submissionResponse `json:"items"`
	TotalItems  int                  `json:"total_items"`
	TotalPages  int                  `json:"total_pages"`
	CurrentPage int                  `json:"current_page"`
}

// NewListCommand lists submissions page by page.
func NewListCommand() *cobra.Command {
	var (
		pageNum  int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			client := &http.Client{Timeout: 10 * time.Second}

			endpoint := fmt.Sprintf("%s/submissions/?page=%d&page_size=%d", url, pageNum, pageSize)
			resp, err := client.Get(endpoint)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			defer resp.Body.Close()

			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 300 {
				return fmt.Errorf("list failed with status %d: %s", resp.StatusCode, string(raw))
			}

			var p page
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}

			fmt.Printf("page %d/%d (%d total)\n", p.CurrentPage, p.TotalPages, p.TotalItems)
			for _, sub := range p.Items {
				fmt.Printf("  %s  %s\n", sub.ID, sub.Status)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pageNum, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Page size")

	return cmd
}
