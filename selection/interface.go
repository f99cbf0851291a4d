package selection

import "context"

// Store persists the last organization/project selection of each user so the
// console reopens where it was left.
type Store interface {
	// Create stores a new selection with Version set to 1.
	// Returns ErrAlreadyExists if the user already has one.
	Create(ctx context.Context, sel *Selection) error

	// Get retrieves the selection of a user.
	// Returns nil if the user has none (not an error).
	Get(ctx context.Context, userID string) (*Selection, error)

	// Update updates an existing selection with optimistic locking.
	// Verifies the Version matches the stored version, increments Version,
	// updates UpdatedAt timestamp, and persists the Selection.
	// Returns ErrVersionConflict if the version does not match.
	// Returns ErrNotFound if the selection does not exist.
	Update(ctx context.Context, sel *Selection) error

	// Delete removes the selection of a user. Used on logout.
	Delete(ctx context.Context, userID string) error

	// Close closes the store and releases any resources.
	Close() error
}
