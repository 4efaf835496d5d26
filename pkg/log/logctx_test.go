package log

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// Тесты меняют slog.Default(), поэтому намеренно НЕ используют t.Parallel().

func newSilent() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// attrHandler — копит базовые атрибуты, пришедшие через Logger.With(...).
type attrHandler struct {
	base []slog.Attr
}

func (h *attrHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h *attrHandler) Handle(context.Context, slog.Record) error { return nil }
func (h *attrHandler) WithGroup(string) slog.Handler             { return h }
func (h *attrHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &attrHandler{base: append(append([]slog.Attr{}, h.base...), attrs...)}
}

func TestFrom_ReturnsDefault_WhenNoLoggerInContext(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	def := newSilent()
	slog.SetDefault(def)

	require.Equal(t, def, From(context.Background()))
}

func TestIntoAndFrom_RoundTrip(t *testing.T) {
	l := newSilent()
	ctx := Into(context.Background(), l)

	require.Equal(t, l, From(ctx))
}

// Мусор по нашему ключу и *slog.Logger(nil) не должны ломать From.
func TestFrom_ReturnsDefault_WhenStoredValueIsWrongTypeOrNil(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })
	def := newSilent()
	slog.SetDefault(def)

	ctxWrong := context.WithValue(context.Background(), ctxKey{}, "not-a-logger")
	require.Equal(t, def, From(ctxWrong))

	var nilLogger *slog.Logger
	ctxNil := context.WithValue(context.Background(), ctxKey{}, nilLogger)
	require.Equal(t, def, From(ctxNil))
}

func TestWith_EnrichesWithoutTouchingParent(t *testing.T) {
	h := &attrHandler{}
	parent := Into(context.Background(), slog.New(h))

	child := With(parent, "viewer_id", "u-1")

	childH, ok := From(child).Handler().(*attrHandler)
	require.True(t, ok)
	require.Len(t, childH.base, 1)
	require.Equal(t, "viewer_id", childH.base[0].Key)

	parentH, ok := From(parent).Handler().(*attrHandler)
	require.True(t, ok)
	require.Empty(t, parentH.base)
}
