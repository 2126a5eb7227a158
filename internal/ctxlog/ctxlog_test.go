package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWith_TagsChildLogger(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	// --- Act ---
	ctx, logger := With(ctx, "package", "gsl")
	logger.Info("direct")
	FromContext(ctx).Info("from context")

	// --- Assert ---
	assert.Contains(t, buf.String(), `msg=direct package=gsl`)
	assert.Contains(t, buf.String(), `msg="from context" package=gsl`)
}

func TestFromContext_PanicsWithoutLogger(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { FromContext(context.Background()) })
}
