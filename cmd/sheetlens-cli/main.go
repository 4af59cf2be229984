package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"sheetlens/adapters/excel"
	"sheetlens/adapters/llm"
	"sheetlens/adapters/postgres"
	"sheetlens/ai"
	"sheetlens/domain/upload"
	"sheetlens/internal"
	"sheetlens/internal/config"
	"sheetlens/internal/migration"
	"sheetlens/internal/profiling"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "sheetlens-cli",
		Short: "Sheetlens CLI for schema migrations and offline workbook analysis",
	}

	rootCmd.AddCommand(
		newMigrateCmd(),
		newStuckCmd(),
		newInspectCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the uploads schema",
		Long: `Apply the uploads schema to PostgreSQL. Every step is idempotent.

Example: sheetlens-cli migrate --database-url postgres://localhost/sheetlens?sslmode=disable`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect(cmd.Context(), databaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			runner := migration.NewRunner()
			if err := runner.Run(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Printf("Schema at version %s\n", runner.Version())
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string (default: $DATABASE_URL)")

	return cmd
}

func newStuckCmd() *cobra.Command {
	var databaseURL string
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "stuck",
		Short: "List uploads still marked processing",
		Long: `List upload records whose pipeline never reached a terminal state, for
example after the server was killed mid-run.

Example: sheetlens-cli stuck --older-than 15m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect(cmd.Context(), databaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := postgres.NewUploadRepository(db).ListByStatus(cmd.Context(), upload.StatusProcessing)
			if err != nil {
				return err
			}

			cutoff := time.Now().Add(-olderThan)
			count := 0
			for _, rec := range records {
				if rec.CreatedAt.After(cutoff) {
					continue
				}
				count++
				fmt.Printf("%s\t%s\t%s\t%s\n", rec.ID, rec.OwnerID, rec.CreatedAt.Format(time.RFC3339), rec.OriginalFilename)
			}
			fmt.Printf("%d upload(s) stuck in processing\n", count)
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string (default: $DATABASE_URL)")
	cmd.Flags().DurationVar(&olderThan, "older-than", 10*time.Minute, "Only report uploads created before now minus this duration")

	return cmd
}

func newInspectCmd() *cobra.Command {
	var withInsight bool
	var sampleRows int

	cmd := &cobra.Command{
		Use:   "inspect [workbook.xlsx]",
		Short: "Parse and profile a workbook locally",
		Long: `Run the parse and profile stages on a local workbook and print the result
as JSON. With --insight the configured providers are asked for an insight too.

Provider settings are read from the same environment as the server
(OPENAI_API_KEY, GEMINI_API_KEY, INSIGHT_PROVIDER_ORDER, ...).

Example: sheetlens-cli inspect sales.xlsx --insight`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), args[0], sampleRows, withInsight)
		},
	}

	cmd.Flags().BoolVar(&withInsight, "insight", false, "Request an insight from the configured providers")
	cmd.Flags().IntVar(&sampleRows, "sample-rows", 10, "Number of leading records to include")

	return cmd
}

type inspectResult struct {
	Schema     []upload.Column       `json:"schema"`
	Statistics upload.DataStatistics `json:"statistics"`
	SampleRows interface{}           `json:"sample_rows"`
	Insight    *upload.Insight       `json:"insight,omitempty"`
}

func runInspect(ctx context.Context, path string, sampleRows int, withInsight bool) error {
	logger := internal.DefaultLogger

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	tbl, err := excel.NewParser(logger).Parse(data)
	if err != nil {
		return err
	}
	profile := profiling.NewDataProfiler().ProfileDataset(tbl)

	records := tbl.Records()
	if sampleRows >= 0 && len(records) > sampleRows {
		records = records[:sampleRows]
	}

	result := inspectResult{
		Schema:     profile.Schema,
		Statistics: profile.Statistics,
		SampleRows: records,
	}

	if withInsight {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		analyzer := ai.NewInsightAnalyzer(
			llm.NewProviders(cfg.AI, &http.Client{}),
			ai.NewPromptManager(cfg.AI.PromptsDir),
			cfg.Pipeline.PromptRows,
			logger,
		)
		insight, err := analyzer.Generate(ctx, ai.DatasetSummary{
			Schema:     profile.Schema,
			Statistics: profile.Statistics,
			Records:    tbl.Records(),
		})
		if err != nil {
			return err
		}
		result.Insight = insight
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func connect(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required (--database-url or DATABASE_URL)")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}
