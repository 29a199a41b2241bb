package auditRepo

import (
	"context"

	"guardget/models"
)

// AuditRepository is append-only: there is deliberately no update or delete.
type AuditRepository interface {
	// Append fails with database.ErrDuplicate when a transfer entry for the
	// same request already exists.
	Append(ctx context.Context, entry *models.AuditEntry) error
	// ListByDevice returns entries oldest first, optionally filtered by kind.
	ListByDevice(ctx context.Context, deviceID string, kinds ...models.AuditKind) ([]models.AuditEntry, error)
}
