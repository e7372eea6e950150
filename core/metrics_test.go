package core

import (
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/require"
)

func TestLogReporter(t *testing.T) {
	var lines []string
	log := funcr.New(func(prefix, args string) {
		lines = append(lines, prefix+" "+args)
	}, funcr.Options{Verbosity: 1})

	r := NewLogReporter(log)
	require.True(t, r.Capabilities().Reporting())
	r.ReportCounter("queries", map[string]string{"class": "ok"}, 3)
	r.ReportTimer("reply_latency", nil, 2*time.Millisecond)
	r.Flush()

	require.Len(t, lines, 2)
	require.True(t, strings.Contains(lines[0], `"queries"`), lines[0])
	require.True(t, strings.Contains(lines[0], `"value"=3`), lines[0])
	require.True(t, strings.Contains(lines[1], `"reply_latency"`), lines[1])
}
