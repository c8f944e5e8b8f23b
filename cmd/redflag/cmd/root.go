package cmd

import (
	"fmt"
	"os"

	"golang-redflag-service/cmd/redflag/config"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	envFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	// appFs is the filesystem evidence, rule books and reports are read
	// from and written to.
	appFs afero.Fs = afero.NewOsFs()
	// appConfig is populated before any subcommand runs.
	appConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "redflag",
	Short: "Anti-money-laundering red flag detection",
	Long: `Redflag normalizes bank statement evidence into a case ledger and runs
configurable red flag detectors over it: structuring, circular transfers,
fan-in/fan-out, profile drift and cash intensity.

Examples:
  redflag analyze --case CASE-1 --input extrato.csv --holder 111.222.333-44
  redflag analyze --case CASE-1 --input a.csv,b.json --rules rules.yaml --output-format json
  redflag serve --addr :8080
  redflag rules`,
	Version:           getVersionString(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return NewCLIErrorHandler(os.Stderr, verbose).HandleError(err)
	}
	return 0
}

func init() {
	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text, json")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads the dotenv file, the config file and the environment,
// then installs the process-wide logger.
func initConfig(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(appFs, envFile); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err).
				WithSuggestion("Check the config file path and syntax")
		}
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		viper.Set("log.level", level)
	} else if verbose {
		viper.Set("log.level", string(logger.DebugLevel))
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		viper.Set("log.format", format)
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", cfg.Log, err)
	}
	logger.SetGlobalLogger(log)

	if verbose && viper.ConfigFileUsed() != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", viper.ConfigFileUsed())
	}

	appConfig = cfg
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
