package messagequeue

import (
	"encoding/json"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects only need to be
// valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectCatalogChanged:
		var p CatalogChangedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		switch p.Op {
		case OpCreated, OpUpdated, OpDeleted:
		default:
			return fmt.Errorf("schema validation failed for %s: unknown op %q", subject, p.Op)
		}
		if p.ItemID < 1 {
			return fmt.Errorf("schema validation failed for %s: item_id must be >= 1", subject)
		}
	}
	return nil
}
