package errors

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForCLI renders err for a terminal:
//
//	Error: <message>
//	  Hint: <suggestion>
//	  Code: <code>
//
// Errors outside this package are shown as internal errors.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}
	e, ok := As(err)
	if !ok {
		e = Wrap(ErrCodeInternal, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n", e.Message)
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  Hint: %s\n", e.Suggestion)
	}
	fmt.Fprintf(&b, "  Code: %s\n", e.Code)
	return b.String()
}

// LogAttrs returns slog attributes describing err. Details are emitted
// as detail_<key> in key order. Errors outside this package yield a
// single "error" attribute.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}
	e, ok := As(err)
	if !ok {
		return []any{slog.String("error", err.Error())}
	}

	attrs := []any{
		slog.String("error_code", e.Code),
		slog.String("kind", string(e.Kind())),
		slog.String("message", e.Message),
		slog.String("severity", string(e.Severity)),
		slog.Bool("retryable", e.Retryable),
	}
	if e.Cause != nil {
		attrs = append(attrs, slog.String("cause", e.Cause.Error()))
	}
	if e.Suggestion != "" {
		attrs = append(attrs, slog.String("suggestion", e.Suggestion))
	}

	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String("detail_"+k, e.Details[k]))
	}
	return attrs
}
