package reconcile

import (
	"context"
	"encoding/json"
	"sort"

	"go.uber.org/zap"
)

// Timecode is one appearance in milliseconds.
type Timecode struct {
	Begin int64 `json:"begin"`
	End   int64 `json:"end"`
}

// FaceMatch is one identity entry of a search document.
type FaceMatch struct {
	Name      string     `json:"name"`
	FaceID    string     `json:"faceId"`
	Timecodes []Timecode `json:"timecodes"`
}

// buildFaceMatches produces one entry per occurrence key, ordered by key. The
// face id comes from the first live raw entry carrying the identity.
func buildFaceMatches(occ occurrences, live []rawEntry) []FaceMatch {
	keys := make([]string, 0, len(occ))
	for k := range occ {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]FaceMatch, 0, len(keys))
	for _, key := range keys {
		fm := FaceMatch{Name: key, Timecodes: make([]Timecode, 0, len(occ[key]))}
		if e, ok := findEntry(live, key); ok {
			fm.Name = e.Name
			fm.FaceID = e.FaceID
		}
		for _, o := range occ[key] {
			fm.Timecodes = append(fm.Timecodes, Timecode{Begin: o.Begin, End: o.End})
		}
		out = append(out, fm)
	}
	return out
}

// findEntry matches an identity key against display names first, then ids.
func findEntry(live []rawEntry, key string) (rawEntry, bool) {
	for _, e := range live {
		if e.Name == key {
			return e, true
		}
	}
	for _, e := range live {
		if e.FaceID == key {
			return e, true
		}
	}
	return rawEntry{}, false
}

// stillFaceMatches groups the live entries of a still image by identity.
func stillFaceMatches(live []rawEntry) []FaceMatch {
	seen := make(map[string]bool, len(live))
	out := make([]FaceMatch, 0, len(live))
	for _, e := range live {
		identity := e.Name
		if identity == "" {
			identity = e.FaceID
		}
		if identity == "" || seen[identity] {
			continue
		}
		seen[identity] = true
		out = append(out, FaceMatch{Name: e.Name, FaceID: e.FaceID, Timecodes: []Timecode{}})
	}
	return out
}

// rebuildSearchDoc runs after the metadata and raw JSON rewrites of a content
// item and replaces its face-match field.
func (r *Reconciler) rebuildSearchDoc(ctx context.Context, p *plan, contentID string) (bool, error) {
	metaKey := p.cat.metadataKey(contentID)
	metaData, err := r.load(ctx, metaKey)
	if err != nil || metaData == nil {
		return false, err
	}
	var occ occurrences
	if err := json.Unmarshal(metaData, &occ); err != nil {
		r.logger.Warn("skipping search document, metadata unparseable", zap.String("key", metaKey), zap.Error(err))
		return false, nil
	}

	rawData, err := r.load(ctx, p.cat.rawKey(contentID))
	if err != nil {
		return false, err
	}
	var live []rawEntry
	if rawData != nil {
		live = liveEntries(p.cat, rawData)
	}

	return true, r.updateDoc(ctx, p, contentID, buildFaceMatches(occ, live))
}

func (r *Reconciler) updateDoc(ctx context.Context, p *plan, contentID string, matches []FaceMatch) error {
	return r.index.Update(ctx, r.indexName, contentID, map[string]any{p.cat.DocField: matches})
}
