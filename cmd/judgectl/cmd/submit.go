package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type submissionRequest struct {
	LanguageID int    `json:"language_id"`
	SourceCode string `json:"source_code"`
	Stdin      string `json:"stdin,omitempty"`
}

type metaResponse struct {
	Time          float64 `json:"time"`
	Memory        int64   `json:"memory"`
	ExitCode      *int    `json:"exit_code"`
	Signal        string  `json:"signal,omitempty"`
	Message       string  `json:"message,omitempty"`
	OutputMatches *bool   `json:"output_matches,omitempty"`
}

type submissionResponse struct {
	ID            string        `json:"id"`
	Status        string        `json:"status"`
	Stdout        string        `json:"stdout,omitempty"`
	Stderr        string        `json:"stderr,omitempty"`
	CompileOutput string        `json:"compile_output,omitempty"`
	Meta          *metaResponse `json:"meta,omitempty"`
}

// NewSubmitCommand submits a source file and, by default, waits for
// the terminal result, printing status, output, and timing.
func NewSubmitCommand() *cobra.Command {
	var (
		languageID int
		stdinFlag  bool
		wait       bool
	)

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Submit a source file for judging",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read source file: %w", err)
			}

			var stdin string
			if stdinFlag {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				stdin = string(data)
			}

			req := submissionRequest{
				LanguageID: languageID,
				SourceCode: string(content),
				Stdin:      stdin,
			}

			url, _ := cmd.Flags().GetString("url")
			body, err := json.Marshal(req)
			if err != nil {
				return err
			}

			endpoint := fmt.Sprintf("%s/submissions/?wait=%t", url, wait)
			client := &http.Client{Timeout: 30 * time.Second}
			resp, err := client.Post(endpoint, "application/json", bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			defer resp.Body.Close()

			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 300 {
				return fmt.Errorf("submit failed with status %d: %s", resp.StatusCode, string(raw))
			}

			var sub submissionResponse
			if err := json.Unmarshal(raw, &sub); err != nil {
				return err
			}
			printSubmission(sub)
			return nil
		},
	}

	cmd.Flags().IntVarP(&languageID, "language", "l", 1, "Language id from /languages")
	cmd.Flags().BoolVarP(&stdinFlag, "stdin", "i", false, "Read stdin for the program from this process's stdin")
	cmd.Flags().BoolVarP(&wait, "wait", "w", true, "Block until the submission reaches a terminal state")

	return cmd
}

func printSubmission(sub submissionResponse) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	bold.Printf("id: %s\n", sub.ID)
	if sub.Status == "FINISHED" {
		green.Printf("status: %s\n", sub.Status)
	} else {
		red.Printf("status: %s\n", sub.Status)
	}

	if sub.Stdout != "" {
		bold.Println("stdout")
		fmt.Println(sub.Stdout)
	}
	if sub.Stderr != "" {
		bold.Println("stderr")
		fmt.Println(sub.Stderr)
	}
	if sub.CompileOutput != "" {
		bold.Println("compile_output")
		fmt.Println(sub.CompileOutput)
	}
	if sub.Meta != nil {
		fmt.Printf("time: %.3fs memory: %dKB\n", sub.Meta.Time, sub.Meta.Memory)
		if sub.Meta.Message != "" {
			fmt.Printf("message: %s\n", sub.Meta.Message)
		}
	}
}
