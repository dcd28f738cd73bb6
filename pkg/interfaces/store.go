package interfaces

import (
	"context"

	"pointcast/pkg/types"
)

// SessionStore is the durable map from session id to session document. Every
// write refreshes the document's sliding expiration. There is no partial
// update and no compare-and-swap: handlers do full read-modify-write cycles.
type SessionStore interface {
	// Create persists a new session document. It fails if the id is taken.
	Create(ctx context.Context, session *types.Session) error

	// Get returns the current document, or ErrSessionNotFound if the id is
	// absent or the document has expired.
	Get(ctx context.Context, sessionID string) (*types.Session, error)

	// Replace unconditionally overwrites the document and refreshes its
	// expiration.
	Replace(ctx context.Context, session *types.Session) error

	// Delete removes the document. Deleting an absent id is not an error.
	Delete(ctx context.Context, sessionID string) error
}
