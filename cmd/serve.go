package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/broadcast"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/signature"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance web server",
	Long: `Start the Face Attendance web server.
The server exposes the recognition kiosk endpoint, employee management,
attendance history, and the live WebSocket dashboards.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// buildPolicy turns the configured policy into engine parameters.
func buildPolicy(cfg *config.Config) (attendance.Policy, error) {
	cutoff, err := cfg.Policy.CutoffClock()
	if err != nil {
		return attendance.Policy{}, err
	}
	return attendance.Policy{
		CutoffSeconds:       cutoff,
		OvernightCorrection: cfg.Policy.OvernightCorrection,
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	pool := postgres.GetGlobalPool()
	defer pool.Close()

	employees := postgres.NewEmployeeRepository(pool)
	records := postgres.NewAttendanceRepository(pool)

	policy, err := buildPolicy(cfg)
	if err != nil {
		return err
	}

	classifier := gallery.NewClassifier(employees)
	engine := attendance.NewEngine(records, policy)
	hub := broadcast.NewHub()

	// Warm up the gallery so the first kiosk request doesn't pay for
	// training. An empty gallery is fine at boot; enrollment fills it later.
	if err := classifier.Train(context.Background()); err != nil {
		if errors.Is(err, gallery.ErrEmptyGallery) {
			fmt.Println("No enrolled faces yet; recognition is disabled until the first enrollment")
		} else {
			return fmt.Errorf("training face gallery: %w", err)
		}
	} else {
		fmt.Printf("Face gallery trained with %d enrolled employees\n", classifier.CurrentModel().Size())
	}

	server := web.NewServer(cfg, web.Dependencies{
		Employees:  employees,
		Attendance: records,
		Extractor:  signature.NewExtractor(),
		Classifier: classifier,
		Engine:     engine,
		Hub:        hub,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attendance on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
