package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

type workersResponse struct {
	QueueName    string `json:"queue_name"`
	QueueSize    int64  `json:"queue_size"`
	WorkersTotal int    `json:"workers_total"`
	WorkersBusy  int    `json:"workers_busy"`
	WorkersIdle  int    `json:"workers_idle"`
	FailedJobs   int64  `json:"failed_jobs"`
	Status       string `json:"status"`
}

// NewWorkersCommand prints the /health/workers snapshot: queue depth,
// worker counts, and failed-job totals. It stays a thin HTTP client
// over judgesrv, never pipeline logic.
func NewWorkersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "Show worker pool and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			client := &http.Client{Timeout: 10 * time.Second}

			resp, err := client.Get(url + "/health/workers")
			if err != nil {
				return fmt.Errorf("workers: %w", err)
			}
			defer resp.Body.Close()

			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 300 {
				return fmt.Errorf("workers failed with status %d: %s", resp.StatusCode, string(raw))
			}

			var w workersResponse
			if err := json.Unmarshal(raw, &w); err != nil {
				return err
			}

			fmt.Printf("queue: %s (%d pending)\n", w.QueueName, w.QueueSize)
			fmt.Printf("workers: %d total, %d busy, %d idle\n", w.WorkersTotal, w.WorkersBusy, w.WorkersIdle)
			fmt.Printf("failed jobs: %d\n", w.FailedJobs)
			return nil
		},
	}
}
