package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// LogDownload logs the outcome of one image download
func LogDownload(l Logger, index int, url, path string, err error) {
	fields := map[string]interface{}{
		"index": index,
		"url":   url,
	}
	if path != "" {
		fields["path"] = path
	}

	if err != nil {
		l.WithError(err).ErrorWithFields("Download failed", fields)
		return
	}
	l.InfoWithFields("Download completed", fields)
}

// LogExtraction logs the result of opening one thumbnail's detail view
func LogExtraction(l Logger, thumbnail string, urls int, failed bool) {
	fields := map[string]interface{}{
		"thumbnail": thumbnail,
		"urls":      urls,
	}
	if failed {
		l.WarnWithFields("Extraction failed", fields)
		return
	}
	l.DebugWithFields("Extraction completed", fields)
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	l := GetLogger().WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(component string, reason string) {
	GetLogger().WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
