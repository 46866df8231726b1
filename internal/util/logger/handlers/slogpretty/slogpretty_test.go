package slogpretty

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"deskd/internal/util/logger/sl"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrettyHandler(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	var buf bytes.Buffer
	opts := PrettyHandlerOptions{SlogOpts: &slog.HandlerOptions{Level: slog.LevelInfo}}
	log := slog.New(opts.NewPrettyHandler(&buf))

	log.Debug("hidden")
	assert.Empty(t, buf.String())

	log.With(slog.String("op", "watch.Start")).
		WithGroup("req").
		Error("failed", sl.Err(errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, "ERROR:")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, `"op": "watch.Start"`)
	assert.Contains(t, out, `"req.error": "boom"`)
}
