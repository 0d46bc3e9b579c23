package logger

import (
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

var (
	emailRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenRegex  = regexp.MustCompile(`eyJ[^\s]+`)
	userIDRegex = regexp.MustCompile(`\buser_id\s*=\s*[\w-]+`)
	uuidRegex   = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
)

// Logger is a centralized structured logger. Every line is a JSON object
// with time, level, module, message and an optional error.
type Logger struct {
	zl zerolog.Logger
}

// New creates a new Logger writing to stdout
func New() *Logger {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter creates a Logger writing to w.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{
		zl: zerolog.New(w).With().Timestamp().Logger(),
	}
}

// SetLevel sets the process-wide minimum level. Unknown names fall back to info.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// Anonymize replaces sensitive information in logs (emails, tokens, IDs)
func Anonymize(s string) string {
	s = emailRegex.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = tokenRegex.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = userIDRegex.ReplaceAllString(s, "user_id=[USER_ID]")
	s = uuidRegex.ReplaceAllString(s, "[ID]")
	return s
}

func (l *Logger) log(module string, level zerolog.Level, msg string, err error) {
	ev := l.zl.WithLevel(level)
	if ev == nil {
		return
	}
	if module != "" {
		ev = ev.Str("module", module)
	}
	if err != nil {
		ev = ev.Str("error", Anonymize(err.Error()))
	}
	ev.Msg(Anonymize(msg))
}

// --- Convenient methods ---
func (l *Logger) Info(module, msg string) {
	l.log(module, zerolog.InfoLevel, msg, nil)
}

func (l *Logger) Debug(module, msg string) {
	l.log(module, zerolog.DebugLevel, msg, nil)
}

func (l *Logger) Error(module, msg string, err error) {
	l.log(module, zerolog.ErrorLevel, msg, err)
}
