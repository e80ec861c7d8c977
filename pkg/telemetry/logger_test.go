package telemetry

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestComponentLoggerTagsEvents(t *testing.T) {
	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = previous })

	logger := ComponentLogger("pipeline")
	logger.Info().Msg("phase executed")

	out := buf.String()
	if !strings.Contains(out, `"component":"pipeline"`) {
		t.Errorf("component field missing: %s", out)
	}
	if !strings.Contains(out, "phase executed") {
		t.Errorf("message missing: %s", out)
	}
}
