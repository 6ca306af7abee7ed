package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/df07/go-nerfw-renderer/pkg/core"
)

// ConsoleMessage represents a console message with timestamp
type ConsoleMessage struct {
	RenderID  string    `json:"renderId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // "debug", "info", "warning"
}

// WebLogger implements core.Logger by sending messages to a console channel
// and to the server log
type WebLogger struct {
	renderID    string
	consoleChan chan<- ConsoleMessage
	base        core.Logger
}

// NewWebLogger creates a new web logger for a specific render. Either consoleChan
// or base may be nil.
func NewWebLogger(renderID string, consoleChan chan<- ConsoleMessage, base core.Logger) *WebLogger {
	if base == nil {
		base = core.NewNopLogger()
	}
	return &WebLogger{
		renderID:    renderID,
		consoleChan: consoleChan,
		base:        base,
	}
}

// Printf implements core.Logger interface
func (wl *WebLogger) Printf(format string, args ...interface{}) {
	wl.send("info", format, args)
	wl.base.Printf("[%s] "+format, append([]interface{}{wl.renderID}, args...)...)
}

// Debugf only reaches the server log
func (wl *WebLogger) Debugf(format string, args ...interface{}) {
	wl.base.Debugf("[%s] "+format, append([]interface{}{wl.renderID}, args...)...)
}

func (wl *WebLogger) Infof(format string, args ...interface{}) {
	wl.send("info", format, args)
	wl.base.Infof("[%s] "+format, append([]interface{}{wl.renderID}, args...)...)
}

func (wl *WebLogger) Warnf(format string, args ...interface{}) {
	wl.send("warning", format, args)
	wl.base.Warnf("[%s] "+format, append([]interface{}{wl.renderID}, args...)...)
}

// send forwards a message to the web console without blocking
func (wl *WebLogger) send(level, format string, args []interface{}) {
	if wl.consoleChan == nil {
		return
	}
	select {
	case wl.consoleChan <- ConsoleMessage{
		RenderID:  wl.renderID,
		Message:   strings.TrimSuffix(fmt.Sprintf(format, args...), "\n"),
		Timestamp: time.Now(),
		Level:     level,
	}:
	default:
		// Channel full, skip (don't block)
	}
}
