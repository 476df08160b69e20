package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-indexer/internal/constants"
	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/merge"
	"github.com/kozaktomas/face-indexer/internal/webvtt"
)

func cueKey(c webvtt.Cue) uint64 {
	return merge.NewHasher().Int(int64(c.Start)).Int(int64(c.End)).String(c.Settings).Sum()
}

// mergeTracks moves the cues of src into dst, replacing the old identity token
// in cue text. dst may be nil when the target has no track yet.
func mergeTracks(dst, src *webvtt.Track, oldToken, newToken string) *webvtt.Track {
	moved := make([]webvtt.Cue, len(src.Cues))
	for i, cue := range src.Cues {
		cue.Text = strings.ReplaceAll(cue.Text, oldToken, newToken)
		moved[i] = cue
	}

	out := &webvtt.Track{Header: src.Header, Blocks: src.Blocks}
	var existing []webvtt.Cue
	if dst != nil {
		out.Header = dst.Header
		out.Blocks = merge.DedupeStrings(dst.Blocks, src.Blocks)
		existing = dst.Cues
	}
	out.Cues = merge.Dedupe(cueKey, existing, moved)
	out.SortByStart()
	out.Resequence()
	out.RepairShort(constants.MinCueDuration, constants.CueExtension)
	return out
}

func (r *Reconciler) rewriteCaptions(ctx context.Context, p *plan, contentID string) (bool, error) {
	changed := false
	var errs []error

	for key := range p.dropKeys {
		trackKey := p.cat.trackKey(contentID, facematch.Slug(key))
		ok, err := r.store.Exists(ctx, r.bucket, trackKey)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		if err := r.store.Delete(ctx, r.bucket, trackKey); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", trackKey, err))
			continue
		}
		changed = true
	}

	for _, op := range p.renames {
		targetSlug := facematch.Slug(op.target)
		if targetSlug == "" {
			continue
		}
		for _, src := range op.sources {
			moved, err := r.moveTrack(ctx, p.cat, contentID, src, op.target, targetSlug)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			changed = changed || moved
		}
	}
	return changed, errors.Join(errs...)
}

func (r *Reconciler) moveTrack(ctx context.Context, cat Category, contentID, src, target, targetSlug string) (bool, error) {
	srcSlug := facematch.Slug(src)
	if srcSlug == "" || srcSlug == targetSlug {
		return false, nil
	}
	srcKey := cat.trackKey(contentID, srcSlug)
	srcData, err := r.load(ctx, srcKey)
	if err != nil || srcData == nil {
		return false, err
	}
	srcTrack, err := webvtt.Parse(srcData)
	if err != nil {
		r.logger.Warn("skipping unparseable caption track", zap.String("key", srcKey), zap.Error(err))
		return false, nil
	}

	targetKey := cat.trackKey(contentID, targetSlug)
	targetData, err := r.load(ctx, targetKey)
	if err != nil {
		return false, err
	}
	var targetTrack *webvtt.Track
	if targetData != nil {
		if targetTrack, err = webvtt.Parse(targetData); err != nil {
			r.logger.Warn("skipping unparseable caption track", zap.String("key", targetKey), zap.Error(err))
			return false, nil
		}
	}

	merged := mergeTracks(targetTrack, srcTrack, src, target)
	if err := r.save(ctx, targetKey, merged.Compile()); err != nil {
		return false, err
	}
	if err := r.store.Delete(ctx, r.bucket, srcKey); err != nil {
		return true, fmt.Errorf("delete %s: %w", srcKey, err)
	}
	return true, nil
}
