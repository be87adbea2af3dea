// Package logging configures structured slog output for pdfrag.
//
// Logs are JSON lines written to a size-rotated file under ~/.pdfrag/logs/.
// In serve mode nothing is written to stdout or stderr, because stdout
// carries the MCP protocol stream. Viewer reads those lines back for
// 'pdfrag logs'.
package logging
