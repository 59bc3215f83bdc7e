package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/veriface/attendance/internal/config"
	"github.com/veriface/attendance/internal/database"
	"github.com/veriface/attendance/internal/database/postgres"
	"github.com/veriface/attendance/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export attendance records to CSV",
	Long: `Exports attendance records to a CSV file, optionally filtered by user
or class session, and prints per-class summary counters.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("user", "", "Filter by user ID")
	exportCmd.Flags().String("class", "", "Filter by class session ID")
	exportCmd.Flags().String("output", "attendance.csv", "Output CSV file")
}

// exportBatchSize bounds a single listing query during export.
const exportBatchSize = 500

func runExport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	records := postgres.NewRecordStore(pool)
	ctx := context.Background()

	filter := database.RecordFilter{
		UserID:  mustGetString(cmd, "user"),
		ClassID: mustGetString(cmd, "class"),
		Limit:   exportBatchSize,
	}

	// Page through the store so large histories don't load at once.
	var all []database.StoredRecord
	for {
		batch, err := records.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list attendance records: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < exportBatchSize {
			break
		}
		filter.Offset += exportBatchSize
	}

	if len(all) == 0 {
		fmt.Println("No attendance records found")
		return nil
	}

	outputPath := mustGetString(cmd, "output")
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	defer f.Close()

	bar := progressbar.NewOptions(len(all),
		progressbar.OptionSetDescription("Exporting records"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	writer := export.NewWriter(f)
	for _, record := range all {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %s: %w", record.ID, err)
		}
		_ = bar.Add(1)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	_ = bar.Finish()

	summaries := export.Summarize(all)
	classIDs := make([]string, 0, len(summaries))
	for classID := range summaries {
		classIDs = append(classIDs, classID)
	}
	sort.Strings(classIDs)

	fmt.Printf("\n\nWrote %d records to %s\n\n", len(all), outputPath)
	for _, classID := range classIDs {
		s := summaries[classID]
		fmt.Printf("%s: %d total (%d present, %d late, %d absent), avg match %.2f%%\n",
			s.ClassID, s.Total, s.Present, s.Late, s.Absent, s.Average)
	}
	return nil
}
