package main

import (
	"github.com/untoldecay/LoomLog/internal/adapters"
	"github.com/untoldecay/LoomLog/internal/config"
	"github.com/untoldecay/LoomLog/internal/correlate"
	"github.com/untoldecay/LoomLog/internal/normalize"
	"github.com/untoldecay/LoomLog/internal/scheduler"
)

// buildIngestor assembles the normalize -> correlate -> store pipeline that
// both the daemon and one-off mining runs feed records through.
func buildIngestor() *scheduler.Ingestor {
	norm := normalize.New(store)
	engine := correlate.New(store, correlate.Config{
		WindowBack:    config.MillisDuration("correlation_window_back_ms"),
		WindowForward: config.MillisDuration("correlation_window_forward_ms"),
	})
	return scheduler.NewIngestor(store, norm, engine)
}

// configuredHistoryFiles maps configured history sources to adapter inputs,
// falling back to the conventional locations when none are configured.
func configuredHistoryFiles() []adapters.HistoryFile {
	files := config.HistoryFiles()
	if len(files) == 0 {
		files = config.DefaultHistoryFiles()
	}
	out := make([]adapters.HistoryFile, 0, len(files))
	for _, hf := range files {
		out = append(out, adapters.HistoryFile{Path: hf.Path, Shell: hf.Shell})
	}
	return out
}
