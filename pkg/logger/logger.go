package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type contextKey string

const requestIDKey contextKey = "request_id"

type Options struct {
	// Level reports the minimum level to log. Defaults to slog.LevelInfo.
	Level slog.Leveler

	TimeFormat string

	// AddSource prints the short file:line of the call site.
	AddSource bool

	// NoColor disables ANSI colors.
	NoColor bool
}

var DefaultOptions = &Options{
	Level:      slog.LevelInfo,
	TimeFormat: time.DateTime,
	AddSource:  true,
}

// Handler is a human-oriented slog.Handler: colored level, request id,
// message and key=value attributes on one line.
type Handler struct {
	groups []string
	attrs  []slog.Attr
	opts   Options

	mu  *sync.Mutex
	out io.Writer
}

// NewHandler creates a Handler writing to out. A nil opts means DefaultOptions.
func NewHandler(out io.Writer, opts *Options) *Handler {
	h := &Handler{out: out, mu: &sync.Mutex{}}
	if opts == nil {
		opts = DefaultOptions
	}
	h.opts = *opts
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	if h.opts.TimeFormat == "" {
		h.opts.TimeFormat = time.DateTime
	}
	return h
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	paint := func(s string, attrs ...color.Attribute) string {
		if h.opts.NoColor {
			return s
		}
		return color.New(attrs...).Sprint(s)
	}

	var bf bytes.Buffer

	if !r.Time.IsZero() {
		bf.WriteString(paint(r.Time.Format(h.opts.TimeFormat), color.Faint))
		bf.WriteByte(' ')
	}

	switch {
	case r.Level >= slog.LevelError:
		bf.WriteString(paint("ERROR", color.BgRed, color.FgHiWhite))
	case r.Level >= slog.LevelWarn:
		bf.WriteString(paint("WARN ", color.BgYellow, color.FgHiWhite))
	case r.Level >= slog.LevelInfo:
		bf.WriteString(paint("INFO ", color.BgGreen, color.FgHiWhite))
	default:
		bf.WriteString(paint("DEBUG", color.BgCyan, color.FgHiWhite))
	}
	bf.WriteByte(' ')

	if requestID, ok := RequestIDFromContext(ctx); ok {
		bf.WriteString(paint(requestID, color.FgMagenta))
		bf.WriteByte(' ')
	}

	if h.opts.AddSource && r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		fmt.Fprintf(&bf, "%s:%d ", filepath.Base(f.File), f.Line)
	}

	bf.WriteString(paint("| ", color.FgHiWhite))
	bf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	attrs := append([]slog.Attr(nil), h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})

	for _, a := range attrs {
		keyColor := color.FgCyan
		if strings.Contains(a.Key, "err") {
			keyColor = color.FgRed
		}
		bf.WriteByte(' ')
		bf.WriteString(paint(prefix+a.Key+"=", keyColor))
		bf.WriteString(a.Value.String())
	}
	bf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(bf.Bytes())
	return err
}

func (h *Handler) WithGroup(name string) slog.Handler {
	h2 := *h
	h2.groups = append(append([]string(nil), h.groups...), name)
	return &h2
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &h2
}

// Err is the attribute used for errors in every log call.
func Err(err error) slog.Attr {
	return slog.Any("err", err)
}

// ParseLevel maps debug/info/warn/error to a level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	return requestID, ok && requestID != ""
}
