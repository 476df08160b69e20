package reconcile

import (
	"context"

	"go.uber.org/zap"
)

// reconcileStill handles a still image, whose only artifact is the
// recognition document itself.
func (r *Reconciler) reconcileStill(ctx context.Context, p *plan, contentID string, col *collector) {
	key := p.cat.stillKey(contentID)
	doc, err := r.load(ctx, key)
	if err != nil {
		col.record(contentID, ArtifactRaw, false, err)
		return
	}
	if doc == nil {
		col.record(contentID, ArtifactRaw, false, nil)
		return
	}

	rewritten, changed, err := applyRawJSON(p, doc)
	if err != nil {
		r.logger.Warn("skipping unparseable image document", zap.String("key", key), zap.Error(err))
		col.record(contentID, ArtifactRaw, false, nil)
		return
	}
	if changed {
		if err := r.save(ctx, key, rewritten); err != nil {
			col.record(contentID, ArtifactRaw, false, err)
			return
		}
	}
	col.record(contentID, ArtifactRaw, changed, nil)

	err = r.updateDoc(ctx, p, contentID, stillFaceMatches(liveEntries(p.cat, rewritten)))
	col.record(contentID, ArtifactSearch, err == nil, err)
}
