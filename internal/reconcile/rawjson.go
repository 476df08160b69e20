package reconcile

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var errInvalidJSON = errors.New("invalid JSON")

// applyRawJSON rewrites the recognition document in place. Entries of deleted
// faces keep their data and gain MarkDeleted; renamed entries get the new
// display name. Fields the reconciler does not own are left untouched.
func applyRawJSON(p *plan, doc []byte) ([]byte, bool, error) {
	if !gjson.ValidBytes(doc) {
		return nil, false, errInvalidJSON
	}
	entries := gjson.GetBytes(doc, p.cat.RawArray)
	if !entries.IsArray() {
		return doc, false, nil
	}

	type entry struct {
		id, name string
		deleted  bool
	}
	var list []entry
	entries.ForEach(func(_, v gjson.Result) bool {
		list = append(list, entry{
			id:      v.Get(p.cat.IDField).String(),
			name:    v.Get(p.cat.NameField).String(),
			deleted: v.Get("MarkDeleted").Bool(),
		})
		return true
	})

	changed := false
	set := func(i int, field string, value any) error {
		var err error
		doc, err = sjson.SetBytes(doc, fmt.Sprintf("%s.%d.%s", p.cat.RawArray, i, field), value)
		changed = true
		return err
	}

	for i, e := range list {
		if p.deleteIDs[e.id] && !e.deleted {
			if err := set(i, "MarkDeleted", true); err != nil {
				return nil, false, err
			}
			list[i].deleted = true
		}
	}

	for _, op := range p.renames {
		matched := false
		for i, e := range list {
			if e.id != op.faceID {
				continue
			}
			matched = true
			if e.name != op.target {
				if err := set(i, p.cat.NameField, op.target); err != nil {
					return nil, false, err
				}
				list[i].name = op.target
			}
		}
		if matched {
			continue
		}
		// No entry carries the face id; fall back to the previous display name.
		for _, prior := range op.priorNames() {
			for i, e := range list {
				if e.name != prior {
					continue
				}
				if err := set(i, p.cat.NameField, op.target); err != nil {
					return nil, false, err
				}
				list[i].name = op.target
			}
		}
	}
	return doc, changed, nil
}

// rawEntry is the part of a raw recognition entry the search document needs.
type rawEntry struct {
	FaceID string
	Name   string
}

// liveEntries returns the entries that are not soft deleted.
func liveEntries(cat Category, doc []byte) []rawEntry {
	var out []rawEntry
	gjson.GetBytes(doc, cat.RawArray).ForEach(func(_, v gjson.Result) bool {
		if v.Get("MarkDeleted").Bool() {
			return true
		}
		out = append(out, rawEntry{
			FaceID: v.Get(cat.IDField).String(),
			Name:   v.Get(cat.NameField).String(),
		})
		return true
	})
	return out
}
