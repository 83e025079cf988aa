package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gorecal/adapters/excel"
	"gorecal/domain/forensic"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gorecal-cli",
		Short: "Recalibration CLI for offline chain verification and observation backfill",
	}

	rootCmd.AddCommand(
		newVerifyCmd(),
		newBackfillCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [export-file]",
		Short: "Verify an exported audit chain offline",
		Long: `Verify a chain export document without access to the service or its
database. Pass "-" to read the document from stdin.

Example: gorecal-cli verify chain_export.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(args[0])
		},
	}

	return cmd
}

func runVerify(path string) error {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read export document: %w", err)
	}

	doc, err := forensic.ParseExportDocument(data)
	if err != nil {
		return err
	}

	fmt.Printf("📜 CHAIN EXPORT\n")
	fmt.Printf("Version: %s\n", doc.Version)
	fmt.Printf("Exported At: %s\n", doc.ExportedAt.Time().Format(time.RFC3339))
	fmt.Printf("Entries: %d\n", doc.ChainLength)
	fmt.Printf("Head: %s\n", doc.Head)

	result := doc.Verify()
	if !result.Valid {
		fmt.Printf("\n❌ CHAIN INVALID\n")
		fmt.Printf("Entry: %d\n", result.Index)
		fmt.Printf("Reason: %s\n", result.Reason)
		return fmt.Errorf("chain verification failed at entry %d: %s", result.Index, result.Reason)
	}

	fmt.Printf("\n✅ CHAIN VERIFIED\n")
	fmt.Printf("All %d entries hash-linked and intact\n", doc.ChainLength)
	return nil
}

func newBackfillCmd() *cobra.Command {
	var apiURL string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "backfill [feed-file]",
		Short: "Backfill observations from an Excel or CSV feed",
		Long: `Read an observation feed (xlsx or csv) and admit each row through the
running service's observation endpoint. Rows the service rejects are
reported and skipped.

Required columns: path, value, source_id. Optional: kind, model_id,
regime_id, ci_lower, ci_upper.

Example: gorecal-cli backfill signals.xlsx --api http://localhost:8080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(args[0], apiURL, dryRun)
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "Base URL of the running service")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse and report the feed without admitting anything")

	return cmd
}

func runBackfill(feedPath, apiURL string, dryRun bool) error {
	reader := excel.NewFeedReader(feedPath)
	data, err := reader.ReadSheet()
	if err != nil {
		return fmt.Errorf("failed to read feed: %w", err)
	}

	observations, err := excel.ParseObservations(data)
	if err != nil {
		return fmt.Errorf("failed to parse feed: %w", err)
	}

	fmt.Printf("📥 Backfilling %d observations from %s\n", len(observations), feedPath)

	if dryRun {
		for _, obs := range observations {
			fmt.Printf("• row %d: %s = %v from %s\n", obs.Row, obs.Path, obs.Value, obs.SourceID)
		}
		fmt.Printf("\n✅ Dry run complete, nothing admitted\n")
		return nil
	}

	client := &http.Client{Timeout: 10 * time.Second}
	endpoint := strings.TrimRight(apiURL, "/") + "/api/observations"

	admitted := 0
	skipped := 0
	for _, obs := range observations {
		if err := postObservation(client, endpoint, obs); err != nil {
			fmt.Printf("❌ Row %d rejected: %v\n", obs.Row, err)
			skipped++
			continue
		}
		admitted++
	}

	fmt.Printf("\nBackfill complete: %d admitted, %d skipped\n", admitted, skipped)
	if skipped > 0 {
		return fmt.Errorf("%d rows rejected", skipped)
	}
	return nil
}

func postObservation(client *http.Client, endpoint string, obs excel.ObservationRow) error {
	payload := map[string]interface{}{
		"path":             obs.Path,
		"value":            obs.Value,
		"kind":             obs.Kind,
		"source_id":        obs.SourceID,
		"model_id":         obs.ModelID,
		"regime_id":        obs.RegimeID,
		"confidence_lower": obs.Lower,
		"confidence_upper": obs.Upper,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := client.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
