package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fish-landings/internal/models"
	"fish-landings/internal/repository"
	"fish-landings/internal/services"
	"fish-landings/pkg/database"
	"fish-landings/pkg/logging"
)

func runPipeline(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	opts := services.RunOptions{
		Years:   a.years(),
		Workers: a.cfg.Pipeline.Workers,
		DryRun:  a.cfg.Pipeline.DryRun || dryRun,
	}
	if workers > 0 {
		opts.Workers = workers
	}
	strict := a.cfg.Pipeline.StrictYear && !lenient

	a.logger.Info(ctx, "[INGESTER_START] Starting landings standardization", logging.Fields{
		"version":     version,
		"data_dir":    a.cfg.Pipeline.DataDir,
		"years":       models.JoinYears(opts.Years),
		"workers":     opts.Workers,
		"dry_run":     opts.DryRun,
		"strict_year": strict,
		"driver":      a.cfg.Database.Driver,
	})

	var repo repository.LandingRepository
	if !opts.DryRun {
		db, err := database.Open(a.cfg.Database.Connection(), a.logger, a.metrics)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		repo = repository.NewLandingRepository(db, a.logger, a.metrics, a.cfg.Pipeline.BatchSize)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	svc := services.NewIngestionService(a.loader(), a.standardizer(strict), repo, a.logger, a.metrics)
	report, runErr := svc.Run(ctx, opts)
	if report != nil {
		if jsonOutput {
			if err := writeJSON(os.Stdout, report); err != nil {
				return err
			}
		} else {
			printReport(os.Stdout, report)
		}
	}
	if runErr != nil {
		return runErr
	}

	a.logger.Info(ctx, "[INGESTER_COMPLETE] Standardization completed", logging.Fields{
		"run_id":         report.RunID,
		"rows_persisted": report.RowsPersisted,
		"warnings":       len(report.Warnings),
	})
	return nil
}

func runInspect(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}

	svc := services.NewInspectionService(a.loader(), a.standardizer(a.cfg.Pipeline.StrictYear), a.rules, a.logger)
	inventory, err := svc.Inspect(cmd.Context(), a.years())
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(os.Stdout, inventory)
	}
	printInventory(os.Stdout, inventory)
	return nil
}

func runSchema(_ *cobra.Command, _ []string) error {
	if jsonOutput {
		return writeJSON(os.Stdout, map[string]interface{}{
			"table":   models.LandingsTable,
			"columns": models.Schema,
		})
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "TABLE %s\n\n", models.LandingsTable)
	fmt.Fprintln(tw, "COLUMN\tTYPE\tNULLABLE\tDESCRIPTION")
	for _, c := range models.Schema {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", c.Name, strings.ToUpper(string(c.Type)), c.Nullable, c.Description)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, report *services.RunReport) {
	rule := strings.Repeat("=", 80)
	title := "STANDARDIZATION COMPLETE"
	if report.DryRun {
		title += " (DRY RUN)"
	}

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Run ID:             %s\n", report.RunID)
	fmt.Fprintf(w, "Years Loaded:       %s\n", models.JoinYears(report.YearsLoaded))
	fmt.Fprintf(w, "Years Skipped:      %s\n", models.JoinYears(report.YearsSkipped))
	fmt.Fprintf(w, "Rows Standardized:  %d\n", report.RowsIn)
	fmt.Fprintf(w, "Duplicates Removed: %d\n", report.DuplicatesRemoved)
	fmt.Fprintf(w, "Rows Persisted:     %d\n", report.RowsPersisted)
	fmt.Fprintf(w, "Duration:           %v\n", report.FinishedAt.Sub(report.StartedAt))

	if s := report.Summary; s != nil {
		fmt.Fprintf(w, "\nDistinct Ports:     %d\n", s.DistinctPorts)
		fmt.Fprintf(w, "Distinct Species:   %d\n", s.DistinctSpecies)
		if s.TotalValueMillions != nil {
			fmt.Fprintf(w, "Total Value:        £%.1fm\n", *s.TotalValueMillions)
		}
		if s.TotalLiveWeightKilotonnes != nil {
			fmt.Fprintf(w, "Live Weight:        %.1f kt\n", *s.TotalLiveWeightKilotonnes)
		}
	}

	if len(report.YearStats) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "YEAR\tROWS\tNO GEAR\tPRICE/TONNE (£)")
		for _, ys := range report.YearStats {
			price := "-"
			if ys.PricePerTonne != nil {
				price = fmt.Sprintf("%.0f", *ys.PricePerTonne)
			}
			fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", ys.Year, ys.RecordCount, ys.NullGearRows, price)
		}
		tw.Flush()
	}

	if len(report.Warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings (%d):\n", len(report.Warnings))
		for _, warning := range report.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
}

func printInventory(w io.Writer, inventory []*services.YearInventory) {
	for _, inv := range inventory {
		fmt.Fprintln(w, strings.Repeat("=", 80))
		if inv.Error != "" {
			fmt.Fprintf(w, "%d: %s\n", inv.Year, inv.Error)
			continue
		}
		fmt.Fprintf(w, "%d: %s (%d rows)\n", inv.Year, inv.Path, inv.Rows)

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  COLUMN\tDISPOSITION\tFIELD")
		for _, c := range inv.Columns {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", c.Name, c.Disposition, c.Field)
		}
		tw.Flush()

		if m := inv.Mapping; m != nil {
			if len(m.Missing) > 0 {
				fmt.Fprintf(w, "  missing fields: %s\n", strings.Join(m.Missing, ", "))
			}
			if m.DeclaredUnit != "" {
				fmt.Fprintf(w, "  value unit: declared %s, actual %s\n", m.DeclaredUnit, m.ActualUnit)
			}
		}

		if len(inv.Nationalities) > 0 {
			fmt.Fprintln(w, "  nationalities:")
			for _, v := range inv.Nationalities {
				fmt.Fprintf(w, "    %-30q -> %-20q %d\n", v.Raw, v.Normalized, v.Count)
			}
		}
		if len(inv.GearCategories) > 0 {
			fmt.Fprintln(w, "  gear categories:")
			for _, v := range inv.GearCategories {
				fmt.Fprintf(w, "    %-30s %d\n", v.Raw, v.Count)
			}
		}
		for _, warning := range inv.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warning)
		}
	}
}
