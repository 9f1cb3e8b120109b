// Package audit describes the before/after notifications emitted for
// configuration changes. Delivery is best effort: a failing Auditor never fails
// the mutation that produced the Entry.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/hostelmess/core"
)

// Actions
const (
	ActionSettingsUpdate = "SETTINGS_UPDATE"
	ActionUpdate         = "UPDATE"
)

type Entry struct {
	ID         string      `json:"id"`
	EntityType string      `json:"entity_type"`
	EntityID   string      `json:"entity_id"`
	Action     string      `json:"action"`
	Actor      string      `json:"actor"`
	Before     interface{} `json:"before"`
	After      interface{} `json:"after"`
	At         time.Time   `json:"at"`
}

// Auditor is any sink for audit entries.
type Auditor interface {
	Record(ctx context.Context, entry Entry) error
}

// Notify stamps and hands entry over to auditor, logging but swallowing any failure.
func Notify(ctx context.Context, auditor Auditor, logger core.Logger, entry Entry) {
	if auditor == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	if err := auditor.Record(ctx, entry); err != nil && logger != nil {
		logger.Warn(
			fmt.Sprintf("recording audit entry: %v", err),
			err,
			map[string]interface{}{"entity_type": entry.EntityType, "action": entry.Action, "actor": entry.Actor},
		)
	}
}
