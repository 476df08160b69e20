package reconcile

import (
	"encoding/json"
	"sort"

	"github.com/kozaktomas/face-indexer/internal/merge"
)

// occurrence is one continuous appearance of an identity, in milliseconds.
type occurrence struct {
	Begin int64   `json:"begin"`
	End   int64   `json:"end"`
	Cx    float64 `json:"cx"`
	Cy    float64 `json:"cy"`
	extra extraFields
}

func (o *occurrence) UnmarshalJSON(data []byte) error {
	type plain occurrence
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err //nolint:wrapcheck // surfaced by the enclosing decode
	}
	*o = occurrence(v)
	o.extra = unknownFields(data, "begin", "end", "cx", "cy")
	return nil
}

func (o occurrence) MarshalJSON() ([]byte, error) {
	type plain occurrence
	return marshalWithExtras(plain(o), o.extra)
}

func occurrenceKey(o occurrence) uint64 {
	return merge.NewHasher().Int(o.Begin).Int(o.End).Float(o.Cx).Float(o.Cy).Sum()
}

// occurrences is keyed by identity.
type occurrences map[string][]occurrence

func applyOccurrences(p *plan, occ occurrences) bool {
	changed := false
	for key := range occ {
		if p.dropKeys[key] {
			delete(occ, key)
			changed = true
		}
	}
	for _, op := range p.renames {
		for _, src := range op.sources {
			if src == op.target {
				continue
			}
			from, ok := occ[src]
			if !ok {
				continue
			}
			delete(occ, src)
			changed = true
			merged := merge.Dedupe(occurrenceKey, occ[op.target], from)
			sort.SliceStable(merged, func(i, j int) bool { return merged[i].Begin < merged[j].Begin })
			occ[op.target] = merged
		}
	}
	return changed
}
