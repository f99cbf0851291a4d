package selection

import (
	"fmt"
	"time"

	"github.com/creastat/consolesync"
)

// firstVersion stamps sel for its initial write.
func firstVersion(sel *Selection, now time.Time) error {
	if sel.UserID == "" {
		return fmt.Errorf("%w: selection without user id", consolesync.ErrInvalidInput)
	}
	sel.CreatedAt = now
	sel.UpdatedAt = now
	sel.Version = 1
	return nil
}

// nextVersion returns the record replacing stored. sel must have been read
// at stored's version; CreatedAt always comes from stored.
func nextVersion(stored Selection, sel Selection, now time.Time) (Selection, error) {
	if stored.Version != sel.Version {
		return Selection{}, fmt.Errorf("%w: user %s at version %d, stored %d",
			consolesync.ErrVersionConflict, sel.UserID, sel.Version, stored.Version)
	}
	sel.Version++
	sel.CreatedAt = stored.CreatedAt
	sel.UpdatedAt = now
	return sel, nil
}
