package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/acme/ganttsync/internal/loadtest"
	"github.com/acme/ganttsync/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Simulate concurrent grid editors against a scratch database",
	Long: `Seed a scratch database with a generated schedule, then run concurrent
editors that each post change batches (one added task, one update, and a
periodic removal) and reload the full grid.

Latency is reported for batches and reloads separately. The configured
database is never touched.

Examples:
  ganttsync loadtest
  ganttsync loadtest --clients 50 --batches 40 --tasks 2000
  ganttsync loadtest --json`,
	Run:     runLoadtest,
	GroupID: "server",
}

func init() {
	loadtestCmd.Flags().Int("clients", 20, "Number of concurrent editors")
	loadtestCmd.Flags().Int("tasks", 1000, "Number of tasks to seed")
	loadtestCmd.Flags().Int("batches", 20, "Change batches per editor")
	loadtestCmd.Flags().Int("load-every", 5, "Reload the grid after every n batches (0 disables)")
	loadtestCmd.Flags().Bool("json", false, "Output results as JSON")
	rootCmd.AddCommand(loadtestCmd)
}

func runLoadtest(cmd *cobra.Command, args []string) {
	clients, _ := cmd.Flags().GetInt("clients")
	tasks, _ := cmd.Flags().GetInt("tasks")
	batches, _ := cmd.Flags().GetInt("batches")
	loadEvery, _ := cmd.Flags().GetInt("load-every")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if clients <= 0 || tasks <= 0 || batches <= 0 {
		fmt.Fprintf(os.Stderr, "Error: --clients, --tasks and --batches must be positive\n")
		os.Exit(1)
	}

	dir, err := os.MkdirTemp("", "ganttsync-loadtest-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	if !jsonOutput {
		fmt.Printf("%s Seeding %d tasks...\n", ui.RenderAccent("🔄"), tasks)
	}
	project, err := loadtest.NewProject(filepath.Join(dir, "loadtest.db"), tasks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer project.Close()

	report, err := project.RunClients(cmd.Context(), loadtest.Options{
		Clients:          clients,
		BatchesPerClient: batches,
		LoadEvery:        loadEvery,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	verifyErr := project.VerifyConsistency(cmd.Context(), tasks)

	if jsonOutput {
		out := map[string]any{
			"clients":    clients,
			"tasks":      tasks,
			"report":     report,
			"consistent": verifyErr == nil,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	} else {
		fmt.Printf("%s %d editors finished in %v, %d rows added\n\n",
			ui.RenderPass("✓"), clients, report.Elapsed.Round(time.Millisecond), report.Added)
		report.Batches.Print(os.Stdout, "Batches")
		if report.Loads.Operations > 0 {
			fmt.Println()
			report.Loads.Print(os.Stdout, "Reloads")
		}
		fmt.Println()
	}

	if verifyErr != nil {
		fmt.Fprintf(os.Stderr, "%s Consistency check failed: %v\n", ui.RenderFail("✗"), verifyErr)
		os.Exit(1)
	}
}
