package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"ai-assist/internal/domain"
)

// auditTrail forwards events to an optional domain.AuditLogger. Write
// failures are logged and never fail the request.
type auditTrail struct {
	sink   domain.AuditLogger
	logger *slog.Logger
}

func (a *auditTrail) record(ctx context.Context, event domain.AuditEvent) {
	if a.sink == nil {
		return
	}
	if err := a.sink.Log(ctx, event); err != nil {
		a.logger.WarnContext(ctx, "audit write failed", "type", event.Type, "error", err)
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return domain.AuditOutcomeSuccess
	}
	return domain.AuditOutcomeFailure
}

// enabledProviders lists the enabled providers of doc as a sorted,
// comma separated string.
func enabledProviders(doc *domain.Settings) string {
	var names []string
	for name, p := range doc.Providers {
		if p.Enabled {
			names = append(names, string(name))
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
