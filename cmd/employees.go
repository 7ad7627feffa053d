package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/spf13/cobra"
)

var employeesCmd = &cobra.Command{
	Use:   "employees",
	Short: "List employees and their enrollment status",
	RunE:  runEmployees,
}

func init() {
	rootCmd.AddCommand(employeesCmd)

	employeesCmd.Flags().Bool("enrolled", false, "Only show employees with an enrolled face")
}

func runEmployees(cmd *cobra.Command, args []string) error {
	enrolledOnly := mustGetBool(cmd, "enrolled")

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	pool := postgres.GetGlobalPool()
	defer pool.Close()

	repo := postgres.NewEmployeeRepository(pool)

	ctx := context.Background()
	list, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("listing employees: %w", err)
	}

	if enrolledOnly {
		filtered := list[:0]
		for _, emp := range list {
			if len(emp.Signature) > 0 {
				filtered = append(filtered, emp)
			}
		}
		list = filtered
	}

	if len(list) == 0 {
		fmt.Println("No employees found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tNAME\tDEPARTMENT\tACTIVE\tENROLLED")
	fmt.Fprintln(w, "----\t----\t----------\t------\t--------")

	for _, emp := range list {
		active := ""
		if emp.Active {
			active = "*"
		}
		enrolled := ""
		if len(emp.Signature) > 0 {
			enrolled = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", emp.Code, emp.FullName(), emp.Department, active, enrolled)
	}

	w.Flush()

	fmt.Printf("\nTotal: %d employees\n", len(list))

	return nil
}
