package cmd

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/signature"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <employee-code> <image-file>",
	Short: "Enroll an employee's face from an image file",
	Long: `Extract a face signature from an image file and store it as the
employee's enrolled face. Re-enrollment replaces the previous signature.`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
}

// imageDataURI reads an image file and wraps it as a base64 data URI.
func imageDataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}

	mime := "image/jpeg"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		mime = "image/png"
	case ".gif":
		mime = "image/gif"
	case ".bmp":
		mime = "image/bmp"
	}

	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)), nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	code, imagePath := args[0], args[1]

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	pool := postgres.GetGlobalPool()
	defer pool.Close()

	ctx := context.Background()
	employees := postgres.NewEmployeeRepository(pool)

	emp, err := employees.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("employee %s not found", code)
		}
		return fmt.Errorf("looking up employee: %w", err)
	}

	dataURI, err := imageDataURI(imagePath)
	if err != nil {
		return err
	}

	sig, err := signature.NewExtractor().Extract(dataURI)
	if err != nil {
		return fmt.Errorf("extracting face signature: %w", err)
	}

	if err := employees.SetSignature(ctx, code, sig.Pixels); err != nil {
		return fmt.Errorf("storing signature: %w", err)
	}

	fmt.Printf("Enrolled face for %s (%s)\n", emp.FullName(), code)
	return nil
}
