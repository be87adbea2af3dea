// Package preflight checks that the host can build and serve an index
// before any work starts.
//
// The checks cover:
//   - free disk space under the data directory (minimum 100 MiB)
//   - write access to the data directory
//   - the open file descriptor limit (minimum 1024)
//   - the pdftotext binary used for extraction
//   - the configured embedding endpoint
//
// Usage:
//
//	checker := preflight.New(
//		preflight.WithPDFProbe(pdf.CheckAvailable),
//		preflight.WithEmbedderProbe(probe),
//	)
//	report := checker.Run(ctx, dataDir)
//	if report.Failed() {
//		// refuse to index
//	}
package preflight
