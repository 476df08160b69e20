package indexer

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-indexer/internal/constants"
	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/imaging"
	"github.com/kozaktomas/face-indexer/internal/storage"
)

// crop is a prepared item of a micro-batch.
type crop struct {
	item  int // index into the checkpoint items
	face  facematch.Face
	cell  *image.RGBA
	thumb []byte
	full  []byte
}

// placement is the side table entry of one composite cell.
type placement struct {
	crop  *crop
	coord facematch.Box // cell rectangle in composite pixels
}

// prepareCrops downloads and crops every batch item concurrently. Items whose
// source cannot be used get an error message and are left out.
func (ix *Indexer) prepareCrops(ctx context.Context, inv Invocation, cp *facematch.Checkpoint, batch []int, logger *zap.Logger) ([]*crop, error) {
	crops := make([]*crop, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for slot, idx := range batch {
		g.Go(func() error {
			item := &cp.Items[idx]
			c, msg, err := ix.prepareCrop(gctx, inv.Bucket, item, inv.Filter)
			if err != nil {
				return err
			}
			if msg != "" {
				logger.Warn("skipping item", zap.String("key", item.Key), zap.String("reason", msg))
				item.ErrorMessage = msg
				return nil
			}
			c.item = idx
			crops[slot] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ready := crops[:0]
	for _, c := range crops {
		if c != nil {
			ready = append(ready, c)
		}
	}
	return ready, nil
}

// prepareCrop returns either a crop, a recoverable item message, or a fatal error.
func (ix *Indexer) prepareCrop(ctx context.Context, bucket string, item *facematch.Item, filter facematch.Filter) (*crop, string, error) {
	face, ok := item.LargestFace(filter)
	if !ok {
		return nil, MsgFilterRejected, nil
	}

	data, err := ix.store.Download(ctx, bucket, item.Key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, MsgSourceMissing, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", item.Key, err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, MsgSourceInvalid, nil
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	padded := facematch.PadFaceBox(face.Box.ToPixels(w, h), w, h,
		constants.FaceAspectWidth, constants.FaceAspectHeight, constants.FaceBoxScale)
	cell := imaging.CropResize(img, padded, ix.cfg.CellWidth, ix.cfg.CellHeight)

	thumb, err := imaging.EncodeJPEG(cell)
	if err != nil {
		return nil, "", err
	}
	full, err := imaging.EncodeJPEG(imaging.Downscale(img, ix.cfg.FullImageMaxSize))
	if err != nil {
		return nil, "", err
	}
	return &crop{face: face, cell: cell, thumb: thumb, full: full}, "", nil
}

// compose lays the crops into the grid row-major and returns the encoded
// composite with its side table.
func (ix *Indexer) compose(crops []*crop) ([]byte, []placement, error) {
	canvas := imaging.NewCanvas(ix.grid())
	placements := make([]placement, len(crops))
	for i, c := range crops {
		placements[i] = placement{crop: c, coord: canvas.Place(i, c.cell)}
	}
	data, err := imaging.EncodeJPEG(canvas.Image())
	if err != nil {
		return nil, nil, fmt.Errorf("encode composite: %w", err)
	}
	return data, placements, nil
}
