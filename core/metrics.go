package core

import (
	"io"
	"time"

	"github.com/go-logr/logr"
	"github.com/uber-go/tally"
)

type logCapabilities struct{}

func (logCapabilities) Reporting() bool { return true }
func (logCapabilities) Tagging() bool   { return true }

// LogReporter is a tally.StatsReporter that writes every flushed metric to a
// logr.Logger at verbosity 1. Histograms are reported per bucket.
type LogReporter struct {
	log logr.Logger
}

func NewLogReporter(log logr.Logger) *LogReporter {
	return &LogReporter{log: log.WithName("metrics")}
}

func (r *LogReporter) Capabilities() tally.Capabilities { return logCapabilities{} }
func (r *LogReporter) Flush()                           {}

func (r *LogReporter) ReportCounter(name string, tags map[string]string, value int64) {
	r.log.V(1).Info(name, "type", "counter", "tags", tags, "value", value)
}

func (r *LogReporter) ReportGauge(name string, tags map[string]string, value float64) {
	r.log.V(1).Info(name, "type", "gauge", "tags", tags, "value", value)
}

func (r *LogReporter) ReportTimer(name string, tags map[string]string, interval time.Duration) {
	r.log.V(1).Info(name, "type", "timer", "tags", tags, "value", interval)
}

func (r *LogReporter) ReportHistogramValueSamples(name string, tags map[string]string, _ tally.Buckets,
	lower, upper float64, samples int64) {
	r.log.V(1).Info(name, "type", "histogram", "tags", tags, "bucket", [2]float64{lower, upper}, "samples", samples)
}

func (r *LogReporter) ReportHistogramDurationSamples(name string, tags map[string]string, _ tally.Buckets,
	lower, upper time.Duration, samples int64) {
	r.log.V(1).Info(name, "type", "histogram", "tags", tags, "bucket", [2]time.Duration{lower, upper}, "samples", samples)
}

// NewRootScope returns a tally scope under prefix that reports to log every
// interval. Closing the returned io.Closer flushes and stops reporting.
func NewRootScope(prefix string, log logr.Logger, interval time.Duration) (tally.Scope, io.Closer) {
	return tally.NewRootScope(tally.ScopeOptions{
		Prefix:   prefix,
		Reporter: NewLogReporter(log),
	}, interval)
}
