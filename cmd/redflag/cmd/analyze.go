package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang-redflag-service/cmd/redflag/config"
	"golang-redflag-service/internal/analyzer"
	"golang-redflag-service/internal/normalize"
	"golang-redflag-service/internal/parsers"
	"golang-redflag-service/internal/reporter"
	"golang-redflag-service/internal/rules"
	"golang-redflag-service/internal/store"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// analyzeOptions holds the flags of the analyze command.
type analyzeOptions struct {
	CaseID       string
	Inputs       []string
	Holder       string
	RulesFile    string
	OutputFormat string
	OutputFile   string
	Narrative    bool
	Verbose      bool
	Location     *time.Location
}

var analyzeFlags analyzeOptions

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the red flag rules over evidence files",
	Long: `Analyze reads one or more evidence files into an in-memory case ledger,
runs every enabled rule and prints the resulting report.

Supported evidence formats:
  .csv .tsv           delimited bank statement exports with a header row
  .json .jsonl        entity records (array, {"transactions": [...]} or one per line)
  .txt .log           printed statement reports, one transaction per line

Examples:
  # Console report for one statement
  redflag analyze --case CASE-1 --input extrato.csv --holder 111.222.333-44

  # Several sources merged into one case, JSON report to a file
  redflag analyze --case CASE-1 --input itau.csv,pix.json \
    --output-format json --output-file report.json

  # Custom rule book and a plain-language summary
  redflag analyze --case CASE-1 --input extrato.csv --rules rules.yaml --narrative`,

	PreRunE: validateAnalyzeFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		analyzeFlags.Verbose = viper.GetBool("verbose")
		if appConfig != nil {
			loc, err := appConfig.Location()
			if err != nil {
				return err
			}
			analyzeFlags.Location = loc
		}
		_, err := runAnalysis(cmd.Context(), analyzeFlags, appFs, cmd.OutOrStdout(), cmd.ErrOrStderr())
		return err
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&analyzeFlags.CaseID, "case", "c", "", "case identifier (required)")
	analyzeCmd.Flags().StringSliceVarP(&analyzeFlags.Inputs, "input", "i", []string{}, "comma-separated evidence file paths (required)")
	analyzeCmd.Flags().StringVar(&analyzeFlags.Holder, "holder", "", "CPF/CNPJ of the account holder for rows that do not name one")
	analyzeCmd.Flags().StringVarP(&analyzeFlags.RulesFile, "rules", "r", "", "YAML rule book (default: built-in rules)")
	analyzeCmd.Flags().StringVarP(&analyzeFlags.OutputFormat, "output-format", "f", "console", "output format: console, json, csv")
	analyzeCmd.Flags().StringVarP(&analyzeFlags.OutputFile, "output-file", "o", "", "output file path (default: stdout)")
	analyzeCmd.Flags().BoolVar(&analyzeFlags.Narrative, "narrative", false, "append a plain-language summary")

	analyzeCmd.MarkFlagRequired("case")
	analyzeCmd.MarkFlagRequired("input")
}

func validateAnalyzeFlags(cmd *cobra.Command, args []string) error {
	return analyzeFlags.validate(appFs)
}

func (o *analyzeOptions) validate(fs afero.Fs) error {
	if strings.TrimSpace(o.CaseID) == "" {
		return errors.ValidationError(errors.CodeMissingField, "case", o.CaseID, nil).
			WithSuggestion("pass --case with the case identifier")
	}
	if len(o.Inputs) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "input", nil, nil).
			WithSuggestion("pass at least one evidence file with --input")
	}
	if !reporter.OutputFormat(o.OutputFormat).IsValid() {
		return errors.ValidationError(errors.CodeInvalidValue, "output-format", o.OutputFormat,
			fmt.Errorf("valid formats: console, json, csv"))
	}

	for _, path := range o.Inputs {
		if _, err := parsers.DetectFormat(path); err != nil {
			return err
		}
		info, err := fs.Stat(path)
		if err != nil {
			return errors.IngestionError(errors.CodeSourceUnreadable, path, err).
				WithSuggestion("check that the evidence file exists and is readable")
		}
		if info.IsDir() {
			return errors.IngestionError(errors.CodeSourceUnreadable, path,
				fmt.Errorf("is a directory, expected a file"))
		}
	}
	return nil
}

// runAnalysis ingests every input into a fresh memory store, analyzes the
// case and renders the report to out or to o.OutputFile.
func runAnalysis(ctx context.Context, o analyzeOptions, fs afero.Fs, out, diag io.Writer) (*analyzer.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.GetGlobalLogger().WithComponent("cli").WithField("case_id", o.CaseID)

	if o.Verbose {
		fmt.Fprintf(diag, "Starting analysis of case %s...\n", o.CaseID)
		fmt.Fprintf(diag, "Inputs: %s\n", strings.Join(o.Inputs, ", "))
		fmt.Fprintf(diag, "Output format: %s\n", o.OutputFormat)
		if o.OutputFile != "" {
			fmt.Fprintf(diag, "Output file: %s\n", o.OutputFile)
		}
	}

	opts := analyzer.Options{
		Store:      store.NewMemory(),
		Normalizer: normalize.New(normalize.Options{Location: o.Location}),
	}
	if o.RulesFile != "" {
		loader, err := rules.NewLoader(fs, o.RulesFile)
		if err != nil {
			return nil, err
		}
		opts.Rules = loader
	}

	a, err := analyzer.New(opts)
	if err != nil {
		return nil, err
	}

	// Every input is attempted so one run reports all unreadable files.
	var failures []*errors.RedflagError
	reader := parsers.NewReader(fs, nil)
	for _, path := range o.Inputs {
		if err := ingestInput(ctx, a, reader, o, path, diag); err != nil {
			log.WithError(err).WithField("input", path).Warn("Failed to ingest evidence")
			failures = append(failures,
				errors.WrapIfNeeded(err, errors.CategoryIngestion, errors.CodeSourceUnreadable, "failed to ingest "+path))
		}
	}
	switch len(failures) {
	case 0:
	case 1:
		return nil, failures[0]
	default:
		return nil, errors.NewErrorSummary(failures)
	}

	report, err := a.Analyze(ctx, o.CaseID)
	if err != nil {
		return nil, err
	}
	log.WithFields(logger.Fields{
		"transactions": report.Transactions,
		"alerts":       len(report.Alerts),
		"status":       report.Status,
	}).Info("Analysis completed")

	reportConfig, err := config.CreateReportConfig(o.OutputFormat)
	if err != nil {
		return nil, err
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return nil, err
	}

	if o.OutputFile != "" {
		written, err := generator.WriteReportFile(fs, o.OutputFile, report)
		if err != nil {
			return nil, err
		}
		if o.Verbose || written != o.OutputFile {
			fmt.Fprintf(diag, "Report written to %s\n", written)
		}
	} else if err := generator.GenerateReportSafely(report, out); err != nil {
		return nil, err
	}

	if o.Narrative {
		fmt.Fprintf(out, "\n%s", reporter.Narrative(report))
	}

	if o.Verbose {
		fmt.Fprintf(diag, "Analysis completed in %v: %d transactions, %d alerts\n",
			report.Duration, report.Transactions, len(report.Alerts))
	}

	return report, nil
}

func ingestInput(ctx context.Context, a *analyzer.Analyzer, reader *parsers.Reader, o analyzeOptions, path string, diag io.Writer) error {
	source, err := reader.Read(ctx, path)
	if err != nil {
		return err
	}
	ingest, err := a.Ingest(ctx, normalize.Batch{
		CaseID:         o.CaseID,
		EvidenceID:     source.EvidenceID,
		HolderDocument: o.Holder,
		Rows:           source.Rows,
	})
	if err != nil {
		return err
	}
	if o.Verbose {
		fmt.Fprintf(diag, "  %s: %d rows, %d kept, %d defaulted, %d dropped\n",
			source.EvidenceID, ingest.Rows, ingest.Kept, ingest.Defaulted, ingest.Dropped)
	}
	return nil
}
