package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
	"github.com/Aman-CERP/pdfrag/internal/logging"
	"github.com/Aman-CERP/pdfrag/internal/output"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	file    string
}

func newLogsCmd() *cobra.Command {
	var lo logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the pdfrag log",
		Long: `Print the last lines of ~/.pdfrag/logs/server.log, or follow it.

Examples:
  pdfrag logs                  # last 50 lines
  pdfrag logs -f               # follow new entries
  pdfrag logs --level warn     # warnings and errors only
  pdfrag logs --filter search  # lines matching a regular expression`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLogs(ctx, cmd, lo)
		},
	}

	cmd.Flags().BoolVarP(&lo.follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lo.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&lo.level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&lo.filter, "filter", "", "Only lines matching this regular expression")
	cmd.Flags().BoolVar(&lo.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&lo.file, "file", "", "Log file path (default ~/.pdfrag/logs/server.log)")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, lo logsOptions) error {
	if lo.lines < 0 {
		return pderrors.ValidationError(fmt.Sprintf("--lines must not be negative, got %d", lo.lines), nil)
	}
	switch lo.level {
	case "", "debug", "info", "warn", "error":
	default:
		return pderrors.ValidationError(fmt.Sprintf("unknown level %q (valid: debug, info, warn, error)", lo.level), nil)
	}

	path, err := logging.FindLogFile(lo.file)
	if err != nil {
		return pderrors.NotFoundError(err.Error())
	}

	var pattern *regexp.Regexp
	if lo.filter != "" {
		pattern, err = regexp.Compile(lo.filter)
		if err != nil {
			return pderrors.ValidationError(fmt.Sprintf("invalid --filter pattern: %v", err), err)
		}
	}

	w := cmd.OutOrStdout()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   lo.level,
		Pattern: pattern,
		NoColor: lo.noColor || !output.IsTerminal(w),
	}, w)

	entries, err := viewer.Tail(path, lo.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)

	if !lo.follow {
		return nil
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Following %s (Ctrl+C to stop)\n", path)
	return viewer.Follow(ctx, path, 200*time.Millisecond, func(e logging.Entry) {
		_, _ = fmt.Fprintln(w, viewer.Format(e))
	})
}
