package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spendshield/internal/intake"
	"github.com/sells-group/spendshield/internal/model"
)

var (
	analyzeDepartment string
	analyzeFiscalYear int
	analyzeJSON       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze one document and print the fraud risk report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// The command waits for the result regardless of server mode.
		cfg.Pipeline.Async = false

		env, err := initApp(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open document")
		}
		defer f.Close() //nolint:errcheck

		var fy *int
		if cmd.Flags().Changed("fiscal-year") {
			fy = &analyzeFiscalYear
		}

		in := intake.New(cfg.Upload)
		input, err := in.Accept(ctx, intake.Upload{
			Filename:   filepath.Base(args[0]),
			Body:       f,
			Department: analyzeDepartment,
			FiscalYear: fy,
		})
		if err != nil {
			return err
		}
		defer in.Remove(input.StoredPath)

		run, err := env.Pipeline.Submit(ctx, input)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		if analyzeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}
		printRun(os.Stdout, run)
		if run.Status == model.RunStatusFailed {
			return eris.New("analysis failed")
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDepartment, "department", "", "department the document belongs to")
	analyzeCmd.Flags().IntVar(&analyzeFiscalYear, "fiscal-year", 0, "fiscal year of the document")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full run as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

// printRun writes a colored, human-readable summary of a run.
func printRun(w io.Writer, run *model.Run) {
	bold := color.New(color.Bold)
	faint := color.New(color.Faint)

	bold.Fprintf(w, "Run %s\n", run.ID)
	faint.Fprintf(w, "  file: %s\n", run.Input.Filename)
	if run.MockMode {
		color.New(color.FgYellow).Fprintf(w, "  mock extraction (%s)\n", run.MockReason)
	}

	if run.Status == model.RunStatusFailed {
		color.New(color.FgRed, color.Bold).Fprintf(w, "  failed at %s\n", run.CurrentStage)
		for _, e := range run.Errors {
			fmt.Fprintf(w, "    %s\n", e)
		}
		return
	}

	if doc := run.Extraction; doc != nil {
		fmt.Fprintf(w, "  vendor:  %s (%s)\n", doc.VendorName, orDash(doc.VendorID))
		fmt.Fprintf(w, "  invoice: %s\n", orDash(doc.InvoiceNumber))
		fmt.Fprintf(w, "  total:   %.2f %s\n", doc.TotalAmount, doc.Currency)
	}

	if rep := run.Report; rep != nil {
		levelColor(rep.RiskLevel).Fprintf(w, "\n  Fraud risk: %.1f/100 %s\n", rep.FraudRiskScore, rep.RiskLevel)
		bold.Fprintf(w, "  %s\n", rep.Disposition)
	}

	if len(run.Anomalies) > 0 {
		fmt.Fprintf(w, "\n  Anomalies (%d):\n", len(run.Anomalies))
		for _, a := range run.Anomalies {
			severityColor(a.Severity).Fprintf(w, "    [%s] ", a.Severity)
			fmt.Fprintf(w, "%s: %s\n", a.FlagType, a.Description)
		}
	}
	if run.Report != nil && len(run.Report.Recommendations) > 0 {
		fmt.Fprintln(w, "\n  Recommendations:")
		for _, rec := range run.Report.Recommendations {
			fmt.Fprintf(w, "    - %s\n", rec)
		}
	}
}

func levelColor(l model.RiskLevel) *color.Color {
	switch l {
	case model.RiskCritical:
		return color.New(color.FgRed, color.Bold)
	case model.RiskHigh:
		return color.New(color.FgRed)
	case model.RiskMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}

func severityColor(s model.Severity) *color.Color {
	switch s {
	case model.SeverityCritical, model.SeverityHigh:
		return color.New(color.FgRed)
	case model.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
