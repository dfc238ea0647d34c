// Package logx provides the component-tagged log.Printf wrappers used
// throughout the runtime, mirroring the BaseAgent.LogInfo/LogDebug/LogError
// convention: plain stdlib logging, no structured logger, a single debug
// gate read from the environment.
package logx

import (
	"log"
	"os"
	"strings"
)

// Debug reports whether QUADRACODE_DEBUG is set to a truthy value.
func Debug() bool {
	return truthy(os.Getenv("QUADRACODE_DEBUG"))
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Logger tags every line with a component name, the way BaseAgent tags
// lines with an agent ID.
type Logger struct {
	component string
	debug     bool
}

// New returns a Logger tagging its output with component.
func New(component string) *Logger {
	return &Logger{component: component, debug: Debug()}
}

func (l *Logger) Info(format string, args ...any) {
	log.Printf(l.component+": "+format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	log.Printf(l.component+" [ERROR]: "+format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	if !l.debug {
		return
	}
	log.Printf(l.component+" [DEBUG]: "+format, args...)
}
