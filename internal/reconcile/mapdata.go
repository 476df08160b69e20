package reconcile

import (
	"github.com/kozaktomas/face-indexer/internal/constants"
	"github.com/kozaktomas/face-indexer/internal/merge"
)

// mapData is the compact identity list kept next to the heavier artifacts.
type mapData struct {
	Version int      `json:"version"`
	Data    []string `json:"data"`
}

func applyMapData(p *plan, md *mapData) bool {
	if !p.touches(md.Data) {
		return false
	}
	next := make([]string, 0, len(md.Data))
	for _, key := range md.Data {
		if mapped, ok := p.mapKey(key); ok {
			next = append(next, mapped)
		}
	}
	md.Data = merge.DedupeStrings(next)
	if md.Version == 0 {
		md.Version = constants.MapDataVersion
	}
	return true
}
