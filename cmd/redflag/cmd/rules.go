package cmd

import (
	"io"

	"golang-redflag-service/internal/rules"
	"golang-redflag-service/pkg/errors"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	rulesBookFile string
	rulesCaseID   string
)

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the effective rule set as YAML",
	Long: `Rules prints the built-in rule set as a YAML rule book, ready to be edited
and passed back with --rules. With --rules, it prints the rules the book
resolves for --case instead.

Examples:
  redflag rules > rules.yaml
  redflag rules --rules rules.yaml --case CASE-1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printRules(appFs, rulesBookFile, rulesCaseID, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)

	rulesCmd.Flags().StringVarP(&rulesBookFile, "rules", "r", "", "YAML rule book to resolve")
	rulesCmd.Flags().StringVarP(&rulesCaseID, "case", "c", "", "case whose overrides are applied")
}

func printRules(fs afero.Fs, path, caseID string, out io.Writer) error {
	ruleSet := rules.Defaults()
	if path != "" {
		loader, err := rules.NewLoader(fs, path)
		if err != nil {
			return err
		}
		ruleSet = loader.RulesFor(caseID)
	}

	data, err := rules.Marshal(ruleSet)
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "write rules", err)
	}
	return nil
}
