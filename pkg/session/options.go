package session

import (
	"time"

	"xmediagrab/pkg/logger"
)

// Options configure how a browser driver is started
type Options struct {
	Headless  bool
	Bin       string
	NoSandbox bool
	UserAgent string
	// ControlURL attaches to a running browser instead of launching one
	ControlURL string
	// ActionTimeout bounds each individual browser call
	ActionTimeout time.Duration
	Logger        logger.Logger
}

// DefaultActionTimeout applies when Options.ActionTimeout is zero
const DefaultActionTimeout = 10 * time.Second

// Normalize fills zero values with defaults
func (o Options) Normalize() Options {
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = DefaultActionTimeout
	}
	if o.Logger == nil {
		o.Logger = logger.NewNopLogger()
	}
	return o
}
