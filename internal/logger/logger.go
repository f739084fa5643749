package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"goa.design/goa/v3/middleware"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Fields = logrus.Fields

// Options configures the process logger
type Options struct {
	Level  string
	File   string // Rotated log file, empty disables file output
	AppEnv string
	Output io.Writer // Defaults to stderr
}

// New builds the process logger: nested formatter with caller info, stderr plus an optional rotated file
func New(opts Options) (*logrus.Logger, error) {
	l := logrus.New()

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	l.SetLevel(level)

	l.SetFormatter(&formatter.Formatter{
		NoColors:        opts.AppEnv == "production",
		TimestampFormat: "02 Jan 06 - 15:04:05",
		HideKeys:        false,
		CallerFirst:     true,
		FieldsOrder:     []string{"component", "camera_id"},
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
		},
	})

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	writers := []io.Writer{out}

	if opts.File != "" && opts.AppEnv != "test" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
		})
	}

	l.SetOutput(io.MultiWriter(writers...))
	l.SetReportCaller(true)

	return l, nil
}

// Component returns an entry tagged with the component name
func Component(l *logrus.Logger, name string) *logrus.Entry {
	return l.WithField("component", name)
}

// Discard returns an entry that writes nowhere, for tests and optional loggers
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// WithRequestID tags the entry with the goa request id stored in ctx
func WithRequestID(ctx context.Context, entry *logrus.Entry) *logrus.Entry {
	requestID := "unknown"
	if ctx != nil {
		if id, ok := ctx.Value(middleware.RequestIDKey).(string); ok && id != "" {
			requestID = id
		}
	}
	return entry.WithField("request_id", requestID)
}

// GoaAdapter routes goa middleware logs through logrus
type GoaAdapter struct {
	entry *logrus.Entry
}

// NewGoaAdapter wraps entry as a goa middleware.Logger
func NewGoaAdapter(entry *logrus.Entry) *GoaAdapter {
	return &GoaAdapter{entry: entry}
}

// Log implements middleware.Logger
// keyvals alternate keys and values, a trailing key without value is logged as the message.
func (a *GoaAdapter) Log(keyvals ...any) error {
	fields := Fields{}
	msg := ""
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 >= len(keyvals) {
			msg = key
			break
		}
		if key == "msg" {
			msg = fmt.Sprint(keyvals[i+1])
			continue
		}
		fields[key] = keyvals[i+1]
	}
	a.entry.WithFields(fields).Info(msg)
	return nil
}

var _ middleware.Logger = (*GoaAdapter)(nil)
