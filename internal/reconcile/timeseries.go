package reconcile

import (
	"encoding/json"
	"sort"

	"github.com/kozaktomas/face-indexer/internal/merge"
)

// detail is one face box observed at a datapoint.
type detail struct {
	L     float64 `json:"l"`
	T     float64 `json:"t"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	extra extraFields
}

func (d *detail) UnmarshalJSON(data []byte) error {
	type plain detail
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err //nolint:wrapcheck // surfaced by the enclosing decode
	}
	*d = detail(v)
	d.extra = unknownFields(data, "l", "t", "w", "h")
	return nil
}

func (d detail) MarshalJSON() ([]byte, error) {
	type plain detail
	return marshalWithExtras(plain(d), d.extra)
}

func detailKey(d detail) uint64 {
	return merge.NewHasher().Float(d.L).Float(d.T).Float(d.W).Float(d.H).Sum()
}

// datapoint counts the faces of one identity at timestamp X.
type datapoint struct {
	X       int64    `json:"x"`
	Y       int      `json:"y"`
	Details []detail `json:"details"`
	extra   extraFields
}

func (dp *datapoint) UnmarshalJSON(data []byte) error {
	type plain datapoint
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err //nolint:wrapcheck // surfaced by the enclosing decode
	}
	*dp = datapoint(v)
	dp.extra = unknownFields(data, "x", "y", "details")
	return nil
}

func (dp datapoint) MarshalJSON() ([]byte, error) {
	type plain datapoint
	return marshalWithExtras(plain(dp), dp.extra)
}

type series struct {
	Label      string      `json:"label,omitempty"`
	Appearance int         `json:"appearance"`
	Data       []datapoint `json:"data"`
	extra      extraFields
}

func (s *series) UnmarshalJSON(data []byte) error {
	type plain series
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err //nolint:wrapcheck // surfaced by the enclosing decode
	}
	*s = series(v)
	s.extra = unknownFields(data, "label", "appearance", "data")
	return nil
}

func (s series) MarshalJSON() ([]byte, error) {
	type plain series
	return marshalWithExtras(plain(s), s.extra)
}

// timeSeries is keyed by identity.
type timeSeries map[string]*series

func applyTimeSeries(p *plan, ts timeSeries) bool {
	changed := false
	for key := range ts {
		if p.dropKeys[key] {
			delete(ts, key)
			changed = true
		}
	}
	for _, op := range p.renames {
		for _, src := range op.sources {
			if src == op.target {
				continue
			}
			from, ok := ts[src]
			if !ok {
				continue
			}
			delete(ts, src)
			changed = true
			if from == nil {
				continue
			}
			into := ts[op.target]
			if into == nil {
				if from.Label != "" {
					from.Label = op.target
				}
				ts[op.target] = from
				continue
			}
			ts[op.target] = mergeSeries(into, from)
		}
	}
	return changed
}

// mergeSeries folds src into dst. Datapoints at the same timestamp combine
// their details and y becomes the number of distinct details. Members only
// one side declares are kept; dst wins where both do.
func mergeSeries(dst, src *series) *series {
	byX := make(map[int64]*datapoint, len(dst.Data)+len(src.Data))
	var order []int64
	for _, list := range [][]datapoint{dst.Data, src.Data} {
		for _, dp := range list {
			cur, ok := byX[dp.X]
			if !ok {
				cp := datapoint{X: dp.X}
				cur = &cp
				byX[dp.X] = cur
				order = append(order, dp.X)
			}
			cur.extra = mergeExtras(cur.extra, dp.extra)
			cur.Details = append(cur.Details, dp.Details...)
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := &series{
		Label:      dst.Label,
		Appearance: max(dst.Appearance, src.Appearance),
		Data:       make([]datapoint, 0, len(order)),
		extra:      mergeExtras(dst.extra, src.extra),
	}
	for _, x := range order {
		dp := byX[x]
		dp.Details = merge.Dedupe(detailKey, dp.Details)
		dp.Y = len(dp.Details)
		out.Data = append(out.Data, *dp)
	}
	return out
}
