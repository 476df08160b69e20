package indexer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-indexer/internal/constants"
	"github.com/kozaktomas/face-indexer/internal/database"
	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/logging"
	"github.com/kozaktomas/face-indexer/internal/metrics"
	"github.com/kozaktomas/face-indexer/internal/recognition"
	"github.com/kozaktomas/face-indexer/internal/storage"
)

// processBatch indexes one micro-batch with a single IndexFaces call. Every
// item of the batch is terminal afterwards.
func (ix *Indexer) processBatch(ctx context.Context, inv Invocation, cp *facematch.Checkpoint, batch []int, logger *zap.Logger) error {
	collection := ix.collectionOf(&cp.Items[batch[0]])

	crops, err := ix.prepareCrops(ctx, inv, cp, batch, logger)
	if err != nil {
		return err
	}
	if len(crops) == 0 {
		return nil
	}

	composite, placements, err := ix.compose(crops)
	if err != nil {
		return err
	}
	width, height := ix.grid().Size()

	externalID := uuid.NewString()
	out, err := ix.recognizer.IndexFaces(ctx, collection, externalID, composite, len(placements)+1)
	if err != nil {
		return fmt.Errorf("index composite %s: %w", externalID, err)
	}

	indexed, superseded, err := matchIndexed(placements, out.FaceRecords, width, height)
	if err != nil {
		return err
	}
	for _, rec := range superseded {
		logger.Warn("indexed face superseded in its cell, left unregistered",
			zap.String(logging.FieldFaceID, rec.Face.FaceID),
			zap.String("external_image_id", rec.Face.ExternalImageID),
			zap.Float64("confidence", rec.Face.Confidence))
	}
	unindexed, stray := matchUnindexed(placements, out.UnindexedFaces, width, height)
	if stray > 0 {
		logger.Warn("unindexed faces outside every cell", zap.Int("count", stray))
	}

	for slot, f := range unindexed {
		if _, ok := indexed[slot]; ok {
			continue
		}
		item := &cp.Items[placements[slot].crop.item]
		item.ErrorMessage = recognition.DescribeReasons(f.Reasons)
		for _, reason := range f.Reasons {
			metrics.FacesUnindexed.WithLabelValues(reason).Inc()
		}
	}

	if err := ix.storeIndexed(ctx, inv, collection, externalID, cp, placements, indexed); err != nil {
		return err
	}

	for _, p := range placements {
		item := &cp.Items[p.crop.item]
		if !item.IsTerminal() {
			item.ErrorMessage = MsgNotIndexed
			metrics.FacesUnindexed.WithLabelValues("UNMATCHED").Inc()
		}
	}

	metrics.FacesIndexed.Add(float64(len(indexed)))
	logger.Info("micro-batch indexed",
		zap.String("external_image_id", externalID),
		zap.Int("faces", len(placements)),
		zap.Int("indexed", len(indexed)),
		zap.Int("unindexed", len(placements)-len(indexed)))
	return nil
}

// storeIndexed uploads the images and registers every matched face concurrently.
func (ix *Indexer) storeIndexed(ctx context.Context, inv Invocation, collection, externalID string, cp *facematch.Checkpoint, placements []placement, indexed map[int]recognition.FaceRecord) error {
	g, gctx := errgroup.WithContext(ctx)
	for slot, rec := range indexed {
		p := placements[slot]
		g.Go(func() error {
			faceID := rec.Face.FaceID
			thumbKey, err := ix.store.Upload(gctx, inv.Bucket, storage.Join(inv.Prefix, constants.FacesDir), faceID+".jpg", p.crop.thumb)
			if err != nil {
				return fmt.Errorf("upload thumbnail of %s: %w", faceID, err)
			}
			fullKey, err := ix.store.Upload(gctx, inv.Bucket, storage.Join(inv.Prefix, constants.FacesDir), faceID+"_full.jpg", p.crop.full)
			if err != nil {
				return fmt.Errorf("upload full image of %s: %w", faceID, err)
			}

			record := ix.faceRecord(rec, collection, externalID, inv.UserID, p.crop.face)
			record.Key = thumbKey
			record.FullImageKey = fullKey
			if err := ix.registry.RegisterFace(gctx, record); err != nil {
				return fmt.Errorf("register face %s: %w", faceID, err)
			}
			cp.Items[p.crop.item].FaceID = faceID
			cp.Items[p.crop.item].ErrorMessage = ""
			ix.logger.Debug("face registered", zap.String(logging.FieldFaceID, faceID))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err //nolint:wrapcheck // errors are wrapped inside the goroutines
	}
	return nil
}

// faceRecord builds the registry record. Attributes are kept only when the
// service is confident about them.
func (ix *Indexer) faceRecord(rec recognition.FaceRecord, collection, externalID, userID string, face facematch.Face) database.FaceRecord {
	record := database.FaceRecord{
		FaceID:          rec.Face.FaceID,
		CollectionID:    collection,
		ExternalImageID: externalID,
		UserID:          userID,
		Coord:           face.Box,
		Confidence:      rec.Face.Confidence,
	}
	detail := rec.FaceDetail
	if detail.Gender != nil && detail.Gender.Confidence >= ix.cfg.AttributeConfidence {
		record.Gender = detail.Gender.Value
	}
	if detail.AgeRange != nil && detail.Confidence >= ix.cfg.AttributeConfidence {
		record.AgeRange = &database.AgeRange{Low: detail.AgeRange.Low, High: detail.AgeRange.High}
	}
	return record
}
