// Package obs owns the process-wide structured logger and the per-test
// correlation fields attached to every fixture log line.
package obs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type correlationContextKey struct{}

// Correlation carries per-test correlation identifiers.
type Correlation struct {
	RunID   string
	Project string
	Test    string
	Driver  string
	Mode    string
}

var (
	loggerMu sync.RWMutex
	logger   *slog.Logger

	runIDOnce sync.Once
	runID     string
)

// Init configures the global structured logger.
func Init() {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger != nil {
		return
	}
	logger = newLogger(os.Stderr)
	slog.SetDefault(logger)
}

// SetOutputForTests overrides the global logger output for tests.
func SetOutputForTests(w io.Writer) func() {
	loggerMu.Lock()
	prev := logger
	logger = newLogger(w)
	slog.SetDefault(logger)
	loggerMu.Unlock()

	return func() {
		loggerMu.Lock()
		defer loggerMu.Unlock()
		if prev != nil {
			logger = prev
		} else {
			logger = newLogger(os.Stderr)
		}
		slog.SetDefault(logger)
	}
}

func newLogger(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				t, ok := attr.Value.Any().(time.Time)
				if ok {
					return slog.String(slog.TimeKey, t.UTC().Format(time.RFC3339Nano))
				}
			}
			return attr
		},
	})
	return slog.New(handler)
}

func globalLogger() *slog.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	Init()
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// RunID identifies this process's test run. Stable for the process lifetime.
func RunID() string {
	runIDOnce.Do(func() {
		runID = uuid.NewString()
	})
	return runID
}

// Pkg returns a logger tagged with package name.
func Pkg(pkg string) *slog.Logger {
	return globalLogger().With("pkg", pkg)
}

// From returns a logger with correlation fields from context.
func From(ctx context.Context) *slog.Logger {
	l := globalLogger()
	corr := CorrelationFromContext(ctx)
	attrs := correlationAttrs(corr)
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

// WithCorrelation stores correlation fields in context. Empty fields in corr
// keep the values already present.
func WithCorrelation(ctx context.Context, corr Correlation) context.Context {
	existing := CorrelationFromContext(ctx)
	if v := strings.TrimSpace(corr.RunID); v != "" {
		existing.RunID = v
	}
	if v := strings.TrimSpace(corr.Project); v != "" {
		existing.Project = v
	}
	if v := strings.TrimSpace(corr.Test); v != "" {
		existing.Test = v
	}
	if v := strings.TrimSpace(corr.Driver); v != "" {
		existing.Driver = v
	}
	if v := strings.TrimSpace(corr.Mode); v != "" {
		existing.Mode = v
	}
	return context.WithValue(ctx, correlationContextKey{}, existing)
}

// CorrelationFromContext returns correlation fields from context.
func CorrelationFromContext(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	corr, ok := ctx.Value(correlationContextKey{}).(Correlation)
	if !ok {
		return Correlation{}
	}
	return corr
}

func correlationAttrs(corr Correlation) []any {
	attrs := make([]any, 0, 10)
	if corr.RunID != "" {
		attrs = append(attrs, "run_id", corr.RunID)
	}
	if corr.Project != "" {
		attrs = append(attrs, "project", corr.Project)
	}
	if corr.Test != "" {
		attrs = append(attrs, "test", corr.Test)
	}
	if corr.Driver != "" {
		attrs = append(attrs, "driver", corr.Driver)
	}
	if corr.Mode != "" {
		attrs = append(attrs, "mode", corr.Mode)
	}
	return attrs
}
