package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF for ingestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		out, err := client.uploadPDF(cmd.Context(), args[0])
		if err != nil {
			printError("upload failed: %v", err)
			return err
		}

		printSuccess("Uploaded %s", args[0])
		printStatus("Document", "%s", out["id"])
		printStatus("Job", "%s", out["job_id"])
		printStep("Ingestion runs in the background; check with: docqa status")
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the uploaded documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		raw, err := client.ask(cmd.Context(), question)
		if err != nil {
			printError("ask failed: %v", err)
			return err
		}

		var out struct {
			Answer  string `json:"answer"`
			Sources []struct {
				Document string  `json:"document"`
				Page     int     `json:"page"`
				Score    float32 `json:"score"`
			} `json:"sources"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("decoding answer: %w", err)
		}

		fmt.Println(out.Answer)
		if len(out.Sources) > 0 {
			fmt.Println()
			for _, s := range out.Sources {
				printStatus("Source", "%s, page %d (score %.2f)", s.Document, s.Page, s.Score)
			}
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and document status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		var health struct {
			Status string `json:"status"`
		}
		if err := client.getJSON(ctx, "/health", &health); err != nil {
			printStatus("Server", "stopped")
			return nil
		}
		printStatus("Server", "running at %s", client.baseURL)

		var stats struct {
			Jobs          map[string]int `json:"jobs"`
			IndexedChunks int            `json:"indexed_chunks"`
		}
		if err := client.getJSON(ctx, "/stats", &stats); err == nil {
			if stats.IndexedChunks >= 0 {
				printStatus("Indexed chunks", "%d", stats.IndexedChunks)
			}
			if n := stats.Jobs["pending"] + stats.Jobs["running"]; n > 0 {
				printStatus("Jobs in flight", "%d", n)
			}
			if n := stats.Jobs["dead"]; n > 0 {
				printWarning("%d dead job(s); inspect with GET /jobs/{id} and replay with POST /jobs/{id}/retry", n)
			}
		}

		var docs []struct {
			FileName   string `json:"FileName"`
			Status     string `json:"Status"`
			ChunkCount int    `json:"ChunkCount"`
			LastError  string `json:"LastError"`
		}
		if err := client.getJSON(ctx, "/documents?limit=100", &docs); err != nil {
			printWarning("could not list documents: %v", err)
			return nil
		}

		if len(docs) == 0 {
			printStatus("Documents", "none uploaded yet")
			return nil
		}
		for _, d := range docs {
			switch d.Status {
			case "indexed":
				printStatus(d.FileName, "indexed (%d chunks)", d.ChunkCount)
			case "failed":
				printStatus(d.FileName, "failed: %s", d.LastError)
			default:
				printStatus(d.FileName, "%s", d.Status)
			}
		}
		return nil
	},
}
