package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
)

func TestLevels(t *testing.T) {
	testCases := []struct {
		level string
		shown []string
		muted []string
	}{
		{"debug", []string{"dbg-line", "info-line", "warn-line"}, nil},
		{"info", []string{"info-line", "warn-line"}, []string{"dbg-line"}},
		{"WARNING", []string{"warn-line"}, []string{"dbg-line", "info-line"}},
		{"error", nil, []string{"dbg-line", "info-line", "warn-line"}},
		{"nonsense", []string{"info-line"}, []string{"dbg-line"}},
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := logging.New(logging.Config{Level: tc.level, Writer: &buf})

			logger.Debug("dbg-line")
			logger.Info("info-line")
			logger.Warn("warn-line")

			out := buf.String()
			for _, s := range tc.shown {
				gt.S(t, out).Contains(s)
			}
			for _, s := range tc.muted {
				gt.S(t, out).NotContains(s)
			}
		})
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: "info", Format: "json", Writer: &buf})
	logger.Info("served", "path", "/health")

	var record map[string]any
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	gt.Equal(t, record["msg"], "served")
	gt.Equal(t, record["path"], "/health")
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: "debug", Writer: &buf})

	ctx := logging.With(context.Background(), logger)
	gt.Equal(t, logging.From(ctx), logger)

	ctx = logging.Attach(ctx, "customer", "Contoso")
	logging.From(ctx).Info("report generated", logging.ErrAttr(goerr.New("boom")))

	out := buf.String()
	gt.S(t, out).Contains("report generated")
	gt.S(t, out).Contains("Contoso")
	gt.S(t, out).Contains("boom")
}

func TestDefaultLogger(t *testing.T) {
	original := logging.Default()
	defer logging.SetDefault(original)

	var buf bytes.Buffer
	replaced := logging.New(logging.Config{Level: "warn", Writer: &buf})
	logging.SetDefault(replaced)

	got := logging.From(context.Background())
	gt.Equal(t, got, replaced)
	got.Warn("from default")
	gt.S(t, buf.String()).Contains("from default")
}
