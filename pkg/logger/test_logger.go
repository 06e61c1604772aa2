package logger

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// TestLogger captures log messages for assertions in tests. Child loggers
// created through WithField/WithFields/WithError record into the root
// TestLogger, so assertions always run against the instance the test built.
type TestLogger struct {
	mu       sync.Mutex
	messages []LogMessage
	zerolog  *zerolog.Logger

	root   *TestLogger
	fields map[string]interface{}
	err    error
}

// LogMessage represents a captured log message
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
	Error   error
}

// NewTestLogger creates a new test logger
func NewTestLogger() *TestLogger {
	nop := zerolog.Nop()
	return &TestLogger{zerolog: &nop}
}

var _ Logger = (*TestLogger)(nil)

func (l *TestLogger) Debug(msg string) { l.log("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.log("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.log("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.log("ERROR", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.log("FATAL", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}

func (l *TestLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.log("FATAL", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	child := &TestLogger{
		zerolog: l.zerolog,
		root:    l.rootLogger(),
		err:     l.err,
		fields:  make(map[string]interface{}, len(l.fields)+len(fields)),
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

func (l *TestLogger) WithError(err error) Logger {
	child := l.WithFields(nil).(*TestLogger)
	child.err = err
	return child
}

func (l *TestLogger) WithContext(ctx context.Context) Logger {
	return l
}

func (l *TestLogger) GetZerolog() *zerolog.Logger {
	return l.zerolog
}

func (l *TestLogger) rootLogger() *TestLogger {
	if l.root != nil {
		return l.root
	}
	return l
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	root := l.rootLogger()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.messages = append(root.messages, LogMessage{
		Level:   level,
		Message: msg,
		Fields:  merged,
		Error:   l.err,
	})
}

// GetMessages returns all captured log messages
func (l *TestLogger) GetMessages() []LogMessage {
	root := l.rootLogger()
	root.mu.Lock()
	defer root.mu.Unlock()

	messages := make([]LogMessage, len(root.messages))
	copy(messages, root.messages)
	return messages
}

// GetMessagesByLevel returns all messages of a specific level
func (l *TestLogger) GetMessagesByLevel(level string) []LogMessage {
	var filtered []LogMessage
	for _, msg := range l.GetMessages() {
		if msg.Level == level {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

// HasMessage checks if a message with the given text was logged
func (l *TestLogger) HasMessage(text string) bool {
	for _, msg := range l.GetMessages() {
		if msg.Message == text {
			return true
		}
	}
	return false
}

// Clear clears all captured messages
func (l *TestLogger) Clear() {
	root := l.rootLogger()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.messages = root.messages[:0]
}
