package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger - структурированный логгер в стиле key/value:
//
//	log.Info("Room created", "room_id", id, "owner_id", ownerID)
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Fatal(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
}

type Option func(*options)

type options struct {
	out     io.Writer
	console bool
}

// WithConsole включает человекочитаемый вывод (для development)
func WithConsole() Option {
	return func(o *options) { o.console = true }
}

// WithWriter перенаправляет вывод, по умолчанию stdout
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

type zerologLogger struct {
	z zerolog.Logger
}

func New(level string, opts ...Option) Logger {
	o := &options{out: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	out := o.out
	if o.console {
		out = zerolog.ConsoleWriter{Out: o.out, TimeFormat: time.RFC3339}
	}

	z := zerolog.New(out).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()

	return &zerologLogger{z: z}
}

// NewNop возвращает логгер, который ничего не пишет
func NewNop() Logger {
	return &zerologLogger{z: zerolog.Nop()}
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *zerologLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.write(l.z.Debug(), msg, keysAndValues)
}

func (l *zerologLogger) Info(msg string, keysAndValues ...interface{}) {
	l.write(l.z.Info(), msg, keysAndValues)
}

func (l *zerologLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.write(l.z.Warn(), msg, keysAndValues)
}

func (l *zerologLogger) Error(msg string, keysAndValues ...interface{}) {
	l.write(l.z.Error(), msg, keysAndValues)
}

// Fatal пишет сообщение и завершает процесс (os.Exit(1))
func (l *zerologLogger) Fatal(msg string, keysAndValues ...interface{}) {
	l.write(l.z.Fatal(), msg, keysAndValues)
}

func (l *zerologLogger) With(keysAndValues ...interface{}) Logger {
	return &zerologLogger{z: l.z.With().Fields(fields(keysAndValues)).Logger()}
}

func (l *zerologLogger) write(e *zerolog.Event, msg string, keysAndValues []interface{}) {
	if e == nil {
		return
	}
	e.Fields(fields(keysAndValues)).Msg(msg)
}

// fields превращает список key/value в map для zerolog.
// Нечетный хвост сохраняется под ключом "!BADKEY".
func fields(keysAndValues []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 >= len(keysAndValues) {
			m["!BADKEY"] = keysAndValues[i]
			break
		}

		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}

		value := keysAndValues[i+1]
		if err, ok := value.(error); ok && err != nil {
			value = err.Error()
		}
		m[key] = value
	}
	return m
}
