// Package cmd provides the CLI commands for pdfrag.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
	"github.com/Aman-CERP/pdfrag/internal/logging"
	"github.com/Aman-CERP/pdfrag/internal/profiling"
	"github.com/Aman-CERP/pdfrag/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	root    string
	debug   bool
	offline bool

	profile  profiling.Options
	profiler *profiling.Session

	logger *slog.Logger
	sink   *logging.Sink
}

// NewRootCmd creates the root command for the pdfrag CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "pdfrag",
		Short: "Hybrid keyword and semantic search over PDFs for AI agents",
		Long: `pdfrag indexes PDF documents into a local SQLite index and serves
keyword (BM25), semantic (embedding) and hybrid search to MCP clients.

  pdfrag index ./papers       build or update the index
  pdfrag search "attention"   query it from the terminal
  pdfrag serve                run the MCP server on stdio`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := opts.startProfiling(); err != nil {
				return err
			}
			return opts.startLogging()
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			opts.stopLogging()
			return opts.stopProfiling()
		},
	}
	cmd.SetVersionTemplate("pdfrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.root, "root", "C", ".", "Project directory (config and index location)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.pdfrag/logs/")
	cmd.PersistentFlags().BoolVar(&opts.offline, "offline", false, "Use the static hashing embedder instead of Ollama")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func (o *globalOptions) startProfiling() error {
	if !o.profile.Enabled() {
		return nil
	}
	session, err := profiling.Start(o.profile)
	if err != nil {
		return err
	}
	o.profiler = session
	return nil
}

func (o *globalOptions) stopProfiling() error {
	if o.profiler == nil {
		return nil
	}
	err := o.profiler.Stop()
	o.profiler = nil
	return err
}

// startLogging opens the log file. stdout is never a log target.
func (o *globalOptions) startLogging() error {
	sink, err := logging.Open(logging.Defaults(o.debug))
	if err != nil {
		// Logging is best effort.
		o.logger = logging.Discard()
		return nil
	}
	o.sink = sink
	o.logger = sink.Logger
	slog.SetDefault(sink.Logger)
	if o.debug {
		o.logger.Debug("debug_logging_enabled",
			slog.String("log_file", sink.Path),
			slog.String("version", version.Version))
	}
	return nil
}

// applyLogLevel honors server.log_level unless --debug already asked for
// everything.
func (o *globalOptions) applyLogLevel(level string) {
	if o.sink == nil || o.debug || level == "" {
		return
	}
	o.sink.SetLevel(level)
}

func (o *globalOptions) stopLogging() {
	if o.sink != nil {
		_ = o.sink.Close()
		o.sink = nil
	}
}

// log returns the configured logger, or a discarding one before setup.
func (o *globalOptions) log() *slog.Logger {
	if o.logger == nil {
		return logging.Discard()
	}
	return o.logger
}

// Execute runs the root command and prints failures to stderr.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, pderrors.FormatForCLI(err))
	}
	return err
}
