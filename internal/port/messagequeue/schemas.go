package messagequeue

// Catalog change operations carried in CatalogChangedPayload.Op.
const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
)

// CatalogChangedPayload is the schema for catalog.changed messages.
// It names the mutation only; receivers reload the full snapshot.
type CatalogChangedPayload struct {
	Op        string `json:"op"`
	ItemID    int64  `json:"item_id"`
	Origin    string `json:"origin"` // instance that committed the mutation
	RequestID string `json:"request_id,omitempty"`
}
