// Package watcher re-ingests PDFs that change under a watched directory
// while the server runs.
//
// Events come from fsnotify, with a polling fallback for file systems that
// do not deliver notifications (network mounts, some container volumes).
// Only *.pdf files are reported. Hidden directories and paths matched by
// Options.Ignore are skipped. Events for the same file are coalesced over
// a debounce window so a PDF that is still being written is ingested once.
//
// Usage:
//
//	w, err := watcher.New(watcher.Options{DebounceWindow: 500 * time.Millisecond})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	r := watcher.NewReindexer(w, ingester, logger)
//	go func() { _ = w.Start(ctx, "/papers") }()
//	r.Run(ctx)
package watcher
