package audit

import (
	"fmt"

	"reaper-go/internal/config"
	"reaper-go/internal/reaper"
)

// NewAuditSinkFromConfig returns the sink selected by cfg. The database sink
// is the account store itself.
func NewAuditSinkFromConfig(cfg config.AuditConfig, store reaper.AuditSink, logger reaper.Logger) (reaper.AuditSink, error) {
	switch cfg.Type {
	case "database":
		if store == nil {
			return nil, fmt.Errorf("database audit sink requires a store")
		}
		return store, nil
	case "log":
		return NewLogSink(logger), nil
	default:
		return nil, fmt.Errorf("unknown audit type: %s", cfg.Type)
	}
}
