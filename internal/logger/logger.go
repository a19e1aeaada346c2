package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a LOG_LEVEL value onto a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

type Logger struct {
	mu    sync.Mutex
	level Level
	out   io.Writer
}

type entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

var defaultLogger = New(INFO, os.Stderr)

func New(level Level, out io.Writer) *Logger {
	return &Logger{level: level, out: out}
}

func SetLevel(level Level) {
	defaultLogger.mu.Lock()
	defaultLogger.level = level
	defaultLogger.mu.Unlock()
}

// SetOutput redirects the default logger, mainly for tests.
func SetOutput(out io.Writer) {
	defaultLogger.mu.Lock()
	defaultLogger.out = out
	defaultLogger.mu.Unlock()
}

func (l *Logger) log(level Level, message string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Message:   message,
		Fields:    redactFields(fields),
	}

	jsonBytes, err := json.Marshal(e)
	if err != nil {
		log.Printf("failed to marshal log entry: %v", err)
		return
	}

	jsonBytes = append(jsonBytes, '\n')
	if _, err := l.out.Write(jsonBytes); err != nil {
		log.Printf("failed to write log entry: %v", err)
	}
}

func (l *Logger) Debug(message string, fields ...map[string]any) {
	l.log(DEBUG, message, mergeFields(fields...))
}

func (l *Logger) Info(message string, fields ...map[string]any) {
	l.log(INFO, message, mergeFields(fields...))
}

func (l *Logger) Warn(message string, fields ...map[string]any) {
	l.log(WARN, message, mergeFields(fields...))
}

func (l *Logger) Error(message string, fields ...map[string]any) {
	l.log(ERROR, message, mergeFields(fields...))
}

// Package-level convenience functions
func Debug(message string, fields ...map[string]any) {
	defaultLogger.Debug(message, fields...)
}

func Info(message string, fields ...map[string]any) {
	defaultLogger.Info(message, fields...)
}

func Warn(message string, fields ...map[string]any) {
	defaultLogger.Warn(message, fields...)
}

func Error(message string, fields ...map[string]any) {
	defaultLogger.Error(message, fields...)
}

func mergeFields(fieldMaps ...map[string]any) map[string]any {
	if len(fieldMaps) == 0 {
		return nil
	}
	result := make(map[string]any)
	for _, fields := range fieldMaps {
		for k, v := range fields {
			result[k] = v
		}
	}
	return result
}

var sensitiveKeys = []string{
	"secret", "signature", "token", "password", "api_key",
	"authorization", "auth",
}

// redactFields truncates values whose field name suggests a credential.
// License keys are logged with head and tail only.
func redactFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}

	redacted := make(map[string]any, len(fields))
	for k, v := range fields {
		keyLower := strings.ToLower(k)

		sensitive := false
		for _, s := range sensitiveKeys {
			if strings.Contains(keyLower, s) {
				sensitive = true
				break
			}
		}
		if !sensitive {
			redacted[k] = v
			continue
		}

		if str, ok := v.(string); ok && len(str) > 8 {
			redacted[k] = str[:3] + "..." + str[len(str)-3:]
		} else {
			redacted[k] = "[REDACTED]"
		}
	}

	return redacted
}

func init() {
	// Quiet down test runs unless a level is set explicitly.
	if os.Getenv("LOG_LEVEL") == "" && strings.Contains(os.Args[0], ".test") {
		SetLevel(ERROR)
		return
	}
	SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
}
