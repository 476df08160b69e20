package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/recognition"
)

func threeCells() []placement {
	return []placement{
		{crop: &crop{item: 10}, coord: facematch.Box{Left: 0, Top: 0, Width: 120, Height: 160}},
		{crop: &crop{item: 11}, coord: facematch.Box{Left: 120, Top: 0, Width: 120, Height: 160}},
		{crop: &crop{item: 12}, coord: facematch.Box{Left: 240, Top: 0, Width: 120, Height: 160}},
	}
}

func TestMatchIndexed_CentroidSelectsCell(t *testing.T) {
	// center at (180, 80) on an 840x480 composite lies in the second cell
	rec := recognition.FaceRecord{Face: recognition.Face{
		FaceID:      "f",
		BoundingBox: recognition.BoundingBox{Left: 150.0 / 840, Top: 40.0 / 480, Width: 60.0 / 840, Height: 80.0 / 480},
	}}

	matched, superseded, err := matchIndexed(threeCells(), []recognition.FaceRecord{rec}, 840, 480)
	require.NoError(t, err)
	assert.Empty(t, superseded)
	require.Len(t, matched, 1)
	got, ok := matched[1]
	require.True(t, ok)
	assert.Equal(t, "f", got.Face.FaceID)
	assert.Equal(t, 11, threeCells()[1].crop.item)
}

func TestMatchIndexed_OutsideCellsIsCorruption(t *testing.T) {
	// center at (60, 300) is below the only occupied row
	rec := recognition.FaceRecord{Face: recognition.Face{
		FaceID:      "stray",
		BoundingBox: recognition.BoundingBox{Left: 40.0 / 840, Top: 280.0 / 480, Width: 40.0 / 840, Height: 40.0 / 480},
	}}
	_, _, err := matchIndexed(threeCells(), []recognition.FaceRecord{rec}, 840, 480)
	assert.ErrorIs(t, err, ErrLayoutCorruption)
}

func TestMatchIndexed_DuplicateKeepsMostConfident(t *testing.T) {
	box := recognition.BoundingBox{Left: 20.0 / 840, Top: 20.0 / 480, Width: 80.0 / 840, Height: 100.0 / 480}
	records := []recognition.FaceRecord{
		{Face: recognition.Face{FaceID: "low", BoundingBox: box, Confidence: 90}},
		{Face: recognition.Face{FaceID: "high", BoundingBox: box, Confidence: 99}},
	}
	matched, superseded, err := matchIndexed(threeCells(), records, 840, 480)
	require.NoError(t, err)
	assert.Equal(t, "high", matched[0].Face.FaceID)
	require.Len(t, superseded, 1)
	assert.Equal(t, "low", superseded[0].Face.FaceID)
}

func TestMatchUnindexed(t *testing.T) {
	faces := []recognition.UnindexedFace{
		{Reasons: []string{"LOW_SHARPNESS"}, FaceDetail: recognition.FaceDetail{
			BoundingBox: recognition.BoundingBox{Left: 260.0 / 840, Top: 0.1, Width: 60.0 / 840, Height: 0.1},
		}},
		{Reasons: []string{"SMALL_BOUNDING_BOX"}, FaceDetail: recognition.FaceDetail{
			BoundingBox: recognition.BoundingBox{Left: 0.9, Top: 0.9, Width: 0.05, Height: 0.05},
		}},
	}
	matched, stray := matchUnindexed(threeCells(), faces, 840, 480)
	assert.Equal(t, 1, stray)
	require.Contains(t, matched, 2)
	assert.Equal(t, []string{"LOW_SHARPNESS"}, matched[2].Reasons)
}

func TestNextBatchGroupsByCollection(t *testing.T) {
	ix := New(nil, nil, nil, testConfig(), "default")
	face := []facematch.Face{{Box: facematch.Box{Width: 0.5, Height: 0.5}}}
	cp := &facematch.Checkpoint{Items: []facematch.Item{
		{Faces: face, FaceID: "done"},
		{Faces: face},
		{Faces: face, CollectionID: "other"},
		{Faces: face, CollectionID: "default"},
		{},
	}}
	advanceCursor(cp)
	assert.Equal(t, 1, cp.Cursor)
	assert.Equal(t, []int{1, 3}, ix.nextBatch(cp))
}

func TestApplyFilter(t *testing.T) {
	cp := &facematch.Checkpoint{Items: []facematch.Item{
		{Faces: []facematch.Face{{Box: facematch.Box{Width: 0.2, Height: 0.2}, Confidence: 50}}},
		{Faces: []facematch.Face{{Box: facematch.Box{Width: 0.2, Height: 0.2}, Confidence: 95}}},
		{},
	}}
	applyFilter(cp, facematch.Filter{MinConfidence: 80})
	assert.Equal(t, MsgFilterRejected, cp.Items[0].ErrorMessage)
	assert.Empty(t, cp.Items[1].ErrorMessage)
	assert.Empty(t, cp.Items[2].ErrorMessage)
}
