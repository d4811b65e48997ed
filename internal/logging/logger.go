// Package logging provides the per-run deployment logger: colored leveled
// lines on the console plus an append-only run log file with lines of the
// form "[ISO-timestamp] LEVEL: message {optional-json-data}".
//
// The Logger is constructed once per deployment and passed explicitly into
// every pipeline stage; there is no package-level state. Failures while
// writing the log file are best-effort and never abort a deployment.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const successName = "success"

// ANSI colors for the console sink.
const (
	colorReset  = "\x1b[0m"
	colorCyan   = "\x1b[36m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
)

// Logger wraps a zap logger teeing a colored console core and a plain-text
// file core for one deployment run.
type Logger struct {
	zl   *zap.Logger
	file *os.File
	path string
}

// New creates the run logger, opening (and appending to)
// <logsDir>/deployment-<deploymentID>.log. The logs directory is created
// if missing. If the file cannot be opened the logger still works with the
// console sink only and prints a single warning.
func New(logsDir, deploymentID string) *Logger {
	l := &Logger{}

	cores := []zapcore.Core{
		&lineCore{
			LevelEnabler: zapcore.InfoLevel,
			enc:          newFieldsEncoder(),
			out:          zapcore.Lock(os.Stdout),
			color:        true,
		},
	}

	path := filepath.Join(logsDir, "deployment-"+deploymentID+".log")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create logs dir: %v\n", err)
	} else if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open log file: %v\n", err)
	} else {
		l.file = f
		l.path = path
		cores = append(cores, &lineCore{
			LevelEnabler: zapcore.InfoLevel,
			enc:          newFieldsEncoder(),
			out:          zapcore.Lock(f),
		})
	}

	l.zl = zap.New(zapcore.NewTee(cores...))
	return l
}

// Path returns the run log file path, or "" when the file sink is absent.
func (l *Logger) Path() string { return l.path }

func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zl.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zl.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zl.Error(msg, fields...) }

// Success logs at info level but renders with the SUCCESS tag in both
// sinks, marking stage completions and the final banner.
func (l *Logger) Success(msg string, fields ...zap.Field) {
	l.zl.Named(successName).Info(msg, fields...)
}

// Close flushes and closes the file sink.
func (l *Logger) Close() {
	_ = l.zl.Sync()
	if l.file != nil {
		_ = l.file.Close()
	}
}

// lineCore renders entries as "[ISO-timestamp] LEVEL: message {json}". The
// same core serves both sinks; the console one adds ANSI colors.
type lineCore struct {
	zapcore.LevelEnabler
	enc   zapcore.Encoder
	out   zapcore.WriteSyncer
	color bool
}

func (c *lineCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.enc = c.enc.Clone()
	for i := range fields {
		fields[i].AddTo(clone.enc)
	}
	return &clone
}

func (c *lineCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *lineCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	tag := levelTag(ent)
	data := c.encodeFields(ent, fields)

	var line string
	if c.color {
		line = fmt.Sprintf("[%s] %s%s%s: %s", ent.Time.Format(time.RFC3339), levelColor(tag), tag, colorReset, ent.Message)
	} else {
		line = fmt.Sprintf("[%s] %s: %s", ent.Time.Format(time.RFC3339), tag, ent.Message)
	}
	if data != "" {
		line += " " + data
	}
	_, err := c.out.Write([]byte(line + "\n"))
	return err
}

func (c *lineCore) Sync() error { return c.out.Sync() }

// encodeFields renders the structured fields as a single JSON object, or
// "" when there are none.
func (c *lineCore) encodeFields(ent zapcore.Entry, fields []zapcore.Field) string {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return ""
	}
	defer buf.Free()
	s := strings.TrimSpace(buf.String())
	if s == "{}" || s == "" {
		return ""
	}
	return s
}

func levelTag(ent zapcore.Entry) string {
	if ent.LoggerName == successName || strings.HasSuffix(ent.LoggerName, "."+successName) {
		return "SUCCESS"
	}
	return strings.ToUpper(ent.Level.String())
}

func levelColor(tag string) string {
	switch tag {
	case "SUCCESS":
		return colorGreen
	case "WARN":
		return colorYellow
	case "ERROR":
		return colorRed
	default:
		return colorCyan
	}
}

// newFieldsEncoder builds a JSON encoder with every standard key disabled,
// so EncodeEntry emits only the field object.
func newFieldsEncoder() zapcore.Encoder {
	return zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
	})
}
