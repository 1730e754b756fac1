// Package audit provides the audit sinks that record deletion lifecycle events.
package audit

import (
	"context"
	"sort"

	"reaper-go/internal/reaper"
)

// LogSink writes audit records to the structured log instead of the database.
type LogSink struct {
	logger reaper.Logger
}

func NewLogSink(logger reaper.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, action string, entityID string, metadata map[string]any) error {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, 4+2*len(keys))
	args = append(args, "action", action, "entity_id", entityID)
	for _, k := range keys {
		args = append(args, k, metadata[k])
	}
	s.logger.Info("audit", args...)
	return nil
}

// Compile-time check
var _ reaper.AuditSink = (*LogSink)(nil)
