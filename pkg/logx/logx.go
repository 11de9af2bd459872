// Package logx provides structured, component-tagged logging with
// env-controlled debug domains.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level identifies the severity of a log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger writes leveled, timestamped lines tagged with a component name.
type Logger struct {
	component string
	logger    *log.Logger
}

type debugSettings struct {
	enabled bool
	domains map[string]bool // nil = all domains
}

var (
	debugMu  sync.RWMutex
	debugCfg = loadDebugFromEnv()
)

// loadDebugFromEnv reads DEBUG and DEBUG_DOMAINS at startup.
//
//	DEBUG=1                          enable debug for all components
//	DEBUG=1 DEBUG_DOMAINS=orch,tools enable debug only for listed components
func loadDebugFromEnv() debugSettings {
	s := debugSettings{}
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		s.enabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		s.domains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			s.domains[strings.TrimSpace(d)] = true
		}
	}
	return s
}

// SetDebug overrides the env-derived debug configuration.
func SetDebug(enabled bool, domains []string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugCfg.enabled = enabled
	if len(domains) == 0 {
		debugCfg.domains = nil
		return
	}
	debugCfg.domains = make(map[string]bool, len(domains))
	for _, d := range domains {
		debugCfg.domains[strings.TrimSpace(d)] = true
	}
}

func debugEnabledFor(component string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if !debugCfg.enabled {
		return false
	}
	if debugCfg.domains == nil {
		return true
	}
	return debugCfg.domains[component]
}

// NewLogger creates a logger tagged with the given component name.
// Output goes to stderr so stdout stays clean for command output.
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0),
	}
}

// Component returns the component tag of this logger.
func (l *Logger) Component() string { return l.component }

// With returns a logger with the same sink but a different component tag.
func (l *Logger) With(component string) *Logger {
	return &Logger{component: component, logger: l.logger}
}

func (l *Logger) log(level Level, format string, args ...any) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	l.logger.Printf("[%s] [%s] %s: %s", ts, l.component, level, fmt.Sprintf(format, args...))
}

// Debug logs at DEBUG level when debug is enabled for this component.
func (l *Logger) Debug(format string, args ...any) {
	if !debugEnabledFor(l.component) {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

var defaultLogger = NewLogger("system")

func Debugf(format string, args ...any) { defaultLogger.Debug(format, args...) }
func Infof(format string, args ...any)  { defaultLogger.Info(format, args...) }
func Warnf(format string, args ...any)  { defaultLogger.Warn(format, args...) }

// Errorf logs and returns the formatted error.
//
//	return logx.Errorf("load checkpoint: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err and returns the wrapped error. Returns nil
// unchanged so it can be used on the last line of a function.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
