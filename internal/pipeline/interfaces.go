package pipeline

import (
	"io"

	"github.com/dvloznov/fraud-detection/internal/gcsuploader"
	"github.com/dvloznov/fraud-detection/internal/metrics"
	"github.com/dvloznov/fraud-detection/internal/narrator"
	"github.com/dvloznov/fraud-detection/internal/runs"
)

// Deps are the collaborators of a training job. Nil optional fields disable
// the feature they serve.
type Deps struct {
	// Storage fetches gs:// archives and publishes the model. Optional.
	Storage gcsuploader.StorageService

	// Recorder is the run ledger. Required.
	Recorder runs.Recorder

	// Narrator summarizes metrics in plain language. Optional.
	Narrator narrator.Narrator

	// Metrics collects job metrics. Optional.
	Metrics metrics.Collector

	// Out receives the console report. Optional; defaults to io.Discard.
	Out io.Writer
}

// TextfileWriter is implemented by collectors that can persist themselves.
type TextfileWriter interface {
	WriteTextfile(path string) error
}

func (d *Deps) defaults() {
	if d.Metrics == nil {
		d.Metrics = metrics.NoOpCollector{}
	}
	if d.Out == nil {
		d.Out = io.Discard
	}
}
