package facematch

// ItemState is the indexing state of a detection item.
type ItemState string

// ItemState values. Every state except ItemPending is terminal.
const (
	ItemPending    ItemState = "pending"
	ItemIndexed    ItemState = "indexed"
	ItemUnindexed  ItemState = "unindexed"
	ItemUndetected ItemState = "undetected"
)

// Face is one detected face candidate inside a source crop.
// Box is relative to the source image (0-1).
type Face struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Item is one detected-face entry produced upstream and indexed by the composite indexer.
// Key points at the temporary source crop in object storage.
type Item struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	CollectionID string `json:"collectionId"`
	Faces        []Face `json:"faces"`
	FaceID       string `json:"faceId,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// State derives the item state from its fields.
func (it *Item) State() ItemState {
	switch {
	case it.FaceID != "":
		return ItemIndexed
	case len(it.Faces) == 0:
		return ItemUndetected
	case it.ErrorMessage != "":
		return ItemUnindexed
	default:
		return ItemPending
	}
}

// IsTerminal reports whether the indexer is done with the item.
func (it *Item) IsTerminal() bool {
	return it.State() != ItemPending
}

// Filter holds the detection thresholds applied before a face is packed into a composite.
type Filter struct {
	MinConfidence float64 `json:"minConfidence"`
	MinBoxWidth   float64 `json:"minBoxWidth"`
	MinBoxHeight  float64 `json:"minBoxHeight"`
}

// Passes reports whether a face meets every threshold.
// A zero confidence means the detector did not report one and is accepted.
func (f Filter) Passes(face Face) bool {
	if face.Confidence > 0 && face.Confidence < f.MinConfidence {
		return false
	}
	return face.Box.Width >= f.MinBoxWidth && face.Box.Height >= f.MinBoxHeight
}

// LargestFace returns the face with the biggest box area that passes the filter.
func (it *Item) LargestFace(filter Filter) (Face, bool) {
	var best Face
	found := false
	for _, face := range it.Faces {
		if !filter.Passes(face) {
			continue
		}
		if !found || face.Box.Area() > best.Box.Area() {
			best = face
			found = true
		}
	}
	return best, found
}

// Checkpoint is the persisted state of one partition. Items before Cursor
// are terminal.
type Checkpoint struct {
	Cursor  int    `json:"cursor"`
	Retries int    `json:"retries"`
	Items   []Item `json:"items"`
}

// Progress returns the share of terminal items in percent.
func (c *Checkpoint) Progress() int {
	if len(c.Items) == 0 {
		return 100
	}
	done := 0
	for i := range c.Items {
		if c.Items[i].IsTerminal() {
			done++
		}
	}
	return done * 100 / len(c.Items)
}
