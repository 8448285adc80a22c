package ws

import (
	"encoding/json"

	"github.com/Strob0t/collectibles/internal/domain/item"
)

// TypeUpdate is the only message type the server pushes.
const TypeUpdate = "update"

// ItemView is the wire shape of one catalog item.
type ItemView struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

// UpdateMessage carries the full catalog, never a diff.
type UpdateMessage struct {
	Type  string     `json:"type"`
	Items []ItemView `json:"items"`
}

// NewUpdateMessage serializes items into an update message. An empty
// catalog encodes as "items":[].
func NewUpdateMessage(items []item.Item) ([]byte, error) {
	views := make([]ItemView, len(items))
	for i := range items {
		views[i] = ItemView{
			ID:          items[i].ID,
			Name:        items[i].Name,
			Price:       items[i].Price,
			Description: items[i].Description,
		}
	}
	return json.Marshal(UpdateMessage{Type: TypeUpdate, Items: views})
}
