package indexer

import (
	"fmt"

	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/recognition"
)

func cellBoxes(placements []placement) []facematch.Box {
	boxes := make([]facematch.Box, len(placements))
	for i, p := range placements {
		boxes[i] = p.coord
	}
	return boxes
}

// locate maps a composite-relative box to the placement whose cell strictly
// contains its center.
func locate(boxes []facematch.Box, box recognition.BoundingBox, width, height int) int {
	rel := facematch.Box{Left: box.Left, Top: box.Top, Width: box.Width, Height: box.Height}
	x, y := rel.PixelCenter(width, height)
	return facematch.FindContaining(boxes, x, y)
}

// matchIndexed assigns every indexed face to its placement. When several
// faces land in one cell the most confident one is kept and the others are
// returned as superseded.
func matchIndexed(placements []placement, records []recognition.FaceRecord, width, height int) (map[int]recognition.FaceRecord, []recognition.FaceRecord, error) {
	boxes := cellBoxes(placements)
	matched := make(map[int]recognition.FaceRecord, len(records))
	var superseded []recognition.FaceRecord
	for _, rec := range records {
		slot := locate(boxes, rec.Face.BoundingBox, width, height)
		if slot < 0 {
			return nil, nil, fmt.Errorf("%w: face %s at %+v is outside every cell", ErrLayoutCorruption, rec.Face.FaceID, rec.Face.BoundingBox)
		}
		prev, ok := matched[slot]
		if ok && prev.Face.Confidence >= rec.Face.Confidence {
			superseded = append(superseded, rec)
			continue
		}
		if ok {
			superseded = append(superseded, prev)
		}
		matched[slot] = rec
	}
	return matched, superseded, nil
}

// matchUnindexed assigns unindexed faces to placements; faces outside every
// cell are returned separately.
func matchUnindexed(placements []placement, faces []recognition.UnindexedFace, width, height int) (map[int]recognition.UnindexedFace, int) {
	boxes := cellBoxes(placements)
	matched := make(map[int]recognition.UnindexedFace, len(faces))
	stray := 0
	for _, f := range faces {
		slot := locate(boxes, f.FaceDetail.BoundingBox, width, height)
		if slot < 0 {
			stray++
			continue
		}
		if _, ok := matched[slot]; !ok {
			matched[slot] = f
		}
	}
	return matched, stray
}
