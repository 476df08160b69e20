package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-indexer/internal/database"
	"github.com/kozaktomas/face-indexer/internal/merge"
)

var ErrEmptyRequest = errors.New("no rename or delete instructions")

// Rename assigns Celeb to a face. UpdateFrom names the identity the face was
// previously known under, when the caller knows it.
type Rename struct {
	FaceID     string `json:"faceId"`
	UpdateFrom string `json:"updateFrom,omitempty"`
	Celeb      string `json:"celeb"`
}

// Delete removes a face from every artifact and from the registry.
type Delete struct {
	FaceID string `json:"faceId"`
}

// Request is one batch of identity corrections. ContentID, when set, is
// reconciled before any discovered content.
type Request struct {
	Renames   []Rename `json:"renames,omitempty"`
	Deletes   []Delete `json:"deletes,omitempty"`
	ContentID string   `json:"contentId,omitempty"`
	Category  string   `json:"category,omitempty"`
}

// Validate checks that every instruction names a face.
func (r *Request) Validate() error {
	if len(r.Renames) == 0 && len(r.Deletes) == 0 {
		return ErrEmptyRequest
	}
	for i, rn := range r.Renames {
		if strings.TrimSpace(rn.FaceID) == "" {
			return fmt.Errorf("rename %d: faceId is required", i)
		}
		if strings.TrimSpace(rn.Celeb) == "" {
			return fmt.Errorf("rename %d: celeb is required", i)
		}
	}
	for i, d := range r.Deletes {
		if strings.TrimSpace(d.FaceID) == "" {
			return fmt.Errorf("delete %d: faceId is required", i)
		}
	}
	return nil
}

func (r *Request) faceIDs() []string {
	ids := make([]string, 0, len(r.Renames)+len(r.Deletes))
	for _, rn := range r.Renames {
		ids = append(ids, rn.FaceID)
	}
	for _, d := range r.Deletes {
		ids = append(ids, d.FaceID)
	}
	return merge.DedupeStrings(ids)
}

// renameOp moves every source identity key onto target.
type renameOp struct {
	faceID  string
	sources []string // faceId first, then prior display names
	target  string
}

// priorNames are the sources that are display names rather than the face id.
func (op renameOp) priorNames() []string {
	return op.sources[1:]
}

// plan is the resolved form of a request, shared read-only by every artifact
// rewrite of one run.
type plan struct {
	cat       Category
	renames   []renameOp
	dropKeys  map[string]bool // identity keys removed outright
	deleteIDs map[string]bool // face ids soft deleted in raw JSON
	renameOf  map[string]string
}

// resolve loads the registry records of every face named in the request and
// expands the instructions into identity keys.
func resolve(ctx context.Context, registry database.FaceReader, cat Category, req *Request) (*plan, error) {
	records, err := registry.BatchGet(ctx, req.faceIDs())
	if err != nil {
		return nil, fmt.Errorf("resolve faces: %w", err)
	}

	p := &plan{
		cat:       cat,
		dropKeys:  make(map[string]bool),
		deleteIDs: make(map[string]bool),
		renameOf:  make(map[string]string),
	}
	for _, d := range req.Deletes {
		p.deleteIDs[d.FaceID] = true
		p.dropKeys[d.FaceID] = true
		if rec, ok := records[d.FaceID]; ok && rec.Celeb != "" {
			p.dropKeys[rec.Celeb] = true
		}
	}
	for _, rn := range req.Renames {
		if p.deleteIDs[rn.FaceID] {
			continue
		}
		candidates := []string{rn.FaceID, rn.UpdateFrom}
		if rec, ok := records[rn.FaceID]; ok {
			candidates = append(candidates, rec.Celeb)
		}
		op := renameOp{faceID: rn.FaceID, target: rn.Celeb}
		for _, key := range merge.DedupeStrings(candidates) {
			if key == "" || (key == rn.Celeb && key != rn.FaceID) {
				continue
			}
			op.sources = append(op.sources, key)
		}
		for _, key := range op.sources {
			if key != op.target {
				p.renameOf[key] = op.target
			}
		}
		p.renames = append(p.renames, op)
	}
	return p, nil
}

// mapKey returns the identity key a stored key becomes, or false when the key
// is dropped.
func (p *plan) mapKey(key string) (string, bool) {
	if p.dropKeys[key] {
		return "", false
	}
	if target, ok := p.renameOf[key]; ok {
		return target, true
	}
	return key, true
}

// touches reports whether any identity key would change.
func (p *plan) touches(keys []string) bool {
	for _, k := range keys {
		if next, ok := p.mapKey(k); !ok || next != k {
			return true
		}
	}
	return false
}
