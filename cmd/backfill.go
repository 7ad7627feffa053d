package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Recompute daily attendance summaries from raw records",
	Long: `Recompute attendance summaries for every (employee, day) pair that has
at least one record in the given date range. Useful after changing the
lateness cutoff or importing historical records.`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)

	backfillCmd.Flags().String("from", "", "Start date YYYY-MM-DD (default 30 days ago)")
	backfillCmd.Flags().String("to", "", "End date YYYY-MM-DD (default today)")
}

func parseDateFlag(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

func runBackfill(cmd *cobra.Command, args []string) error {
	now := time.Now()

	from, err := parseDateFlag(mustGetString(cmd, "from"), now.AddDate(0, 0, -30))
	if err != nil {
		return err
	}
	to, err := parseDateFlag(mustGetString(cmd, "to"), now)
	if err != nil {
		return err
	}
	if to.Before(from) {
		return errors.New("--to must not be before --from")
	}

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	pool := postgres.GetGlobalPool()
	defer pool.Close()

	records := postgres.NewAttendanceRepository(pool)

	policy, err := buildPolicy(cfg)
	if err != nil {
		return err
	}
	engine := attendance.NewEngine(records, policy)

	ctx := context.Background()
	days, err := records.EmployeeDaysBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("listing employee days: %w", err)
	}
	if len(days) == 0 {
		fmt.Println("No attendance records in the given range")
		return nil
	}

	bar := progressbar.NewOptions(len(days),
		progressbar.OptionSetDescription("Recomputing summaries"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("days"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var failed int
	for _, day := range days {
		if _, err := engine.RecomputeSummary(ctx, day); err != nil {
			failed++
			fmt.Printf("\nfailed to recompute %s %s: %v\n",
				day.EmployeeCode, day.Date.Format("2006-01-02"), err)
		}
		_ = bar.Add(1)
	}
	fmt.Println()

	if failed > 0 {
		return fmt.Errorf("recomputed %d summaries, %d failed", len(days)-failed, failed)
	}
	fmt.Printf("Recomputed %d summaries\n", len(days))
	return nil
}
