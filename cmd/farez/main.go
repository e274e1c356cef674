package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/zoobzio/farez"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "farez",
		Short: "Validate captured flight booking responses",
		Long: `farez validates the responses of a flight booking flow (Search,
FareConfirm, Book and Retrieve) against their contracts: fare arithmetic,
reference integrity, currency consistency, structure and cross-step
agreement.

Each command reads response bodies captured as JSON files, prints every
finding of the stage and exits non-zero when any rule failed.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts struct {
		configPath string
		currency   string
		agency     string
		status     int
		jsonLogs   bool
		verbose    bool
		dump       bool
	}
)

// errFailed reports that validation ran and found failures.
var errFailed = errors.New("validation failed")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file")
	flags.StringVar(&opts.currency, "currency", "", "expected currency (AgencyCurrency header)")
	flags.StringVar(&opts.agency, "agency", "", "expected agency (Agency header)")
	flags.IntVar(&opts.status, "status", 0, "HTTP status the response was received with")
	flags.BoolVar(&opts.jsonLogs, "json-logs", false, "log as JSON instead of text")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every skip, warning and note")
	flags.BoolVar(&opts.dump, "dump", false, "write each report to stdout as JSON")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(fareConfirmCmd)
	rootCmd.AddCommand(bookCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(rejectedCmd)
	rootCmd.AddCommand(flowCmd)
}

// newLogger builds the stderr logger selected by the flags.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if opts.jsonLogs {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// loadConfig reads the config file, if any, and applies the header flags.
func loadConfig() (farez.Config, error) {
	cfg := farez.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := farez.LoadConfig(opts.configPath)
		if err != nil {
			return farez.Config{}, err
		}
		cfg = loaded
	}
	headers := map[string]string{}
	if opts.currency != "" {
		headers[farez.HeaderAgencyCurrency] = opts.currency
	}
	if opts.agency != "" {
		headers[farez.HeaderAgency] = opts.agency
	}
	return cfg.WithHeaders(headers), nil
}

// newEngine builds the engine every command validates with.
func newEngine(cmd *cobra.Command) (*farez.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	options := []farez.Option{farez.WithLogger(newLogger(cmd.ErrOrStderr()))}
	if opts.dump {
		options = append(options, farez.WithDump(cmd.OutOrStdout()))
	}
	return farez.NewEngine(cfg, options...)
}
