package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/acme/ganttsync/internal/seed"
	gsync "github.com/acme/ganttsync/internal/sync"
	"github.com/acme/ganttsync/internal/ui"
)

var schemaCmd = &cobra.Command{
	Use:     "schema",
	GroupID: "data",
	Short:   "Database schema management",
}

var schemaInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the tasks and dependencies tables",
	Long: `Create the database file and its tables if they do not exist.

serve does this on startup too. Existing tables are never altered.`,
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		fmt.Printf("%s Schema ready at %s\n", ui.RenderPass("✓"), store.Path())
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "data",
	Short:   "Show database location and row counts",
	Run: func(cmd *cobra.Command, args []string) {
		info, err := os.Stat(cfg.Storage.Path)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s Database not initialized\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'ganttsync schema init' to create it\n\n")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		store, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		fmt.Printf("\n%s Database status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("   %s\n", ui.KeyValue("Location: ", store.Path()))
		fmt.Printf("   %s\n", ui.KeyValue("Driver:   ", cfg.Storage.Driver))
		fmt.Printf("   %s\n", ui.KeyValue("Size:     ", fmt.Sprintf("%.1f KB", float64(info.Size())/1024)))
		for _, coll := range store.Collections() {
			n, err := store.Count(coll)
			if err != nil {
				fmt.Printf("   %s %s: %v\n", ui.RenderFail("✗"), coll, err)
				continue
			}
			fmt.Printf("   %s\n", ui.KeyValue(fmt.Sprintf("%-10s", coll+":"), n))
		}
		fmt.Println()
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "data",
	Short:   "Load a grid data file into the database",
	Long: `Load tasks and dependencies from a JSON file in the GET /data format.

Nested task "children" are flattened and linked through parentId. Rows
without an id get a generated one. A row that fails to insert is reported
and the import continues.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		store, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		start := time.Now()
		res, err := seed.Import(cmd.Context(), store, seed.Options{Path: args[0], DryRun: dryRun})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d tasks and %d dependencies in %v\n", ui.RenderPass("✓"), verb,
			res.Tasks, res.Dependencies, time.Since(start).Round(time.Millisecond))
		for _, e := range res.Errors {
			fmt.Printf("   %s %s\n", ui.RenderFail("✗"), e)
		}
		if len(res.Errors) > 0 {
			os.Exit(1)
		}
	},
}

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "data",
	Short:   "Write the database contents as a grid data file",
	Long:    `Write every task and dependency to file, or stdout when omitted.`,
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		out := os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer f.Close()
			out = f
		}

		if err := seed.Export(cmd.Context(), gsync.NewReader(store, &logger), out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(args) == 1 {
			fmt.Fprintf(os.Stderr, "%s Exported to %s\n", ui.RenderPass("✓"), args[0])
		}
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "Parse and count rows without writing")

	schemaCmd.AddCommand(schemaInitCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
}
