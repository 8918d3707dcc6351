package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/getpup/pgtenancy/migrate"
)

func printResult(result migrate.SchemaResult) {
	if result.OK() {
		color.Green("schema %s up to date: %d applied in %s",
			result.Schema, len(result.Applied), result.Duration.Round(time.Millisecond))
		return
	}
	color.Red("schema %s failed after %s: %v",
		result.Schema, result.Duration.Round(time.Millisecond), result.Err)
}

func printReport(report migrate.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCHEMA\tSTATUS\tAPPLIED\tDURATION")
	for _, result := range report.Results {
		status := color.GreenString("ok")
		if !result.OK() {
			status = color.RedString("failed")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			result.Schema, status, len(result.Applied), result.Duration.Round(time.Millisecond))
	}
	w.Flush()

	failed := report.Failed()
	fmt.Printf("run %s: %d migrations applied across %d schemas, %d failed, took %s\n",
		report.RunID, report.TotalApplied(), len(report.Results), len(failed),
		report.Duration().Round(time.Millisecond))
	for _, result := range failed {
		color.Red("  %s: %v", result.Schema, result.Err)
	}
}
