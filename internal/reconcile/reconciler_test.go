package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-indexer/internal/database"
	"github.com/kozaktomas/face-indexer/internal/database/mock"
	"github.com/kozaktomas/face-indexer/internal/search"
	"github.com/kozaktomas/face-indexer/internal/storage"
	"github.com/kozaktomas/face-indexer/internal/webvtt"
)

const (
	proxyBucket = "proxy"
	indexName   = "content"
)

type fixture struct {
	store    *storage.MemoryStore
	registry *mock.MockFaceRegistry
	index    *search.MemoryIndex
	rec      *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:    storage.NewMemoryStore(),
		registry: mock.NewMockFaceRegistry(),
		index:    search.NewMemoryIndex(),
	}
	f.registry.AddFace(database.FaceRecord{FaceID: "face-a"})
	f.registry.AddFace(database.FaceRecord{FaceID: "face-b", Celeb: "Jan Novak"})
	f.registry.AddFace(database.FaceRecord{FaceID: "face-x"})

	objects := map[string]string{
		"video-1/faceMatch/mapdata.json": `{"version":1,"data":["face-a","Jan Novak","face-x"]}`,
		"video-1/faceMatch/raw.json": `{"JobId":"job-1","Faces":[` +
			`{"Timestamp":1000,"FaceId":"face-a","Name":""},` +
			`{"Timestamp":1000,"FaceId":"face-b","Name":"Jan Novak"},` +
			`{"Timestamp":2000,"FaceId":"face-x","Name":""}]}`,
		"video-1/faceMatch/timeseries.json": `{` +
			`"face-a":{"appearance":3,"data":[{"x":1000,"y":2,"details":[{"l":0.1,"t":0.1,"w":0.2,"h":0.2},{"l":0.5,"t":0.5,"w":0.2,"h":0.2}]}]},` +
			`"Jan Novak":{"appearance":5,"data":[{"x":1000,"y":1,"details":[{"l":0.1,"t":0.1,"w":0.2,"h":0.2}]}]},` +
			`"face-x":{"appearance":1,"data":[{"x":2000,"y":1,"details":[{"l":0.7,"t":0.1,"w":0.1,"h":0.1}]}]}}`,
		"video-1/faceMatch/metadata.json": `{` +
			`"face-a":[{"begin":1000,"end":2000,"cx":0.2,"cy":0.2}],` +
			`"Jan Novak":[{"begin":0,"end":500,"cx":0.2,"cy":0.2},{"begin":1000,"end":2000,"cx":0.2,"cy":0.2}],` +
			`"face-x":[{"begin":2000,"end":3000,"cx":0.75,"cy":0.15}]}`,
		"video-1/faceMatch/vtt/face_a.vtt": "WEBVTT\n\n1\n00:00:01.000 --> 00:00:01.050\nface-a\n",
		"video-1/faceMatch/vtt/jan_novak.vtt": "WEBVTT\n\n1\n00:00:00.000 --> 00:00:00.500\nJan Novak\n",
		"video-1/faceMatch/vtt/face_x.vtt":    "WEBVTT\n\n1\n00:00:02.000 --> 00:00:03.000\nface-x\n",
		"image-1/image/faceMatch.json":        `{"Faces":[{"FaceId":"face-a","Name":""},{"FaceId":"face-x","Name":""}]}`,
		"video-2/faceMatch/mapdata.json":      `{"version":1,"data":["face-z"]}`,
	}
	for key, body := range objects {
		require.NoError(t, storage.Put(ctx, f.store, proxyBucket, key, []byte(body)))
	}

	docs := map[string][]FaceMatch{
		"video-1": {{FaceID: "face-a"}, {Name: "Jan Novak", FaceID: "face-b"}, {FaceID: "face-x"}},
		"image-1": {{FaceID: "face-a"}, {FaceID: "face-x"}},
		"video-2": {{FaceID: "face-z"}},
	}
	for id, matches := range docs {
		require.NoError(t, f.index.Update(ctx, indexName, id, map[string]any{"title": id, "faceMatch": matches}))
	}

	f.rec = New(f.store, proxyBucket, f.registry, f.index, indexName, WithLogger(zap.NewNop()), WithConcurrency(2))
	return f
}

func (f *fixture) snapshot(t *testing.T) map[string]string {
	t.Helper()
	ctx := context.Background()
	out := make(map[string]string)
	for _, key := range f.store.Keys(proxyBucket, "") {
		data, err := f.store.Download(ctx, proxyBucket, key)
		require.NoError(t, err)
		out[key] = string(data)
	}
	for _, id := range []string{"video-1", "image-1", "video-2"} {
		doc, err := f.index.Get(ctx, indexName, id)
		require.NoError(t, err)
		out["doc:"+id] = string(doc)
	}
	return out
}

func (f *fixture) object(t *testing.T, key string) []byte {
	t.Helper()
	data, err := f.store.Download(context.Background(), proxyBucket, key)
	require.NoError(t, err)
	return data
}

func (f *fixture) exists(t *testing.T, key string) bool {
	t.Helper()
	ok, err := f.store.Exists(context.Background(), proxyBucket, key)
	require.NoError(t, err)
	return ok
}

var renameAndDelete = Request{
	Renames: []Rename{{FaceID: "face-a", Celeb: "Jan Novak"}},
	Deletes: []Delete{{FaceID: "face-x"}},
}

func TestReconcileMultiFrame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.rec.Reconcile(ctx, renameAndDelete)
	require.NoError(t, err)
	assert.Equal(t, "faceMatch", res.Category)
	assert.Equal(t, []string{"image-1", "video-1"}, res.Contents)
	assert.Zero(t, res.Failed)
	assert.True(t, res.RegistryUpdated)

	mapData := f.object(t, "video-1/faceMatch/mapdata.json")
	assert.JSONEq(t, `{"version":1,"data":["Jan Novak"]}`, string(mapData))

	raw := f.object(t, "video-1/faceMatch/raw.json")
	assert.Equal(t, int64(3), gjson.GetBytes(raw, "Faces.#").Int())
	assert.Equal(t, "Jan Novak", gjson.GetBytes(raw, "Faces.0.Name").String())
	assert.True(t, gjson.GetBytes(raw, "Faces.2.MarkDeleted").Bool())
	assert.Equal(t, "face-x", gjson.GetBytes(raw, "Faces.2.FaceId").String())

	ts := f.object(t, "video-1/faceMatch/timeseries.json")
	assert.False(t, gjson.GetBytes(ts, "face-a").Exists())
	assert.False(t, gjson.GetBytes(ts, "face-x").Exists())
	assert.Equal(t, int64(2), gjson.GetBytes(ts, "Jan Novak.data.0.y").Int())
	assert.Equal(t, int64(5), gjson.GetBytes(ts, "Jan Novak.appearance").Int())

	meta := f.object(t, "video-1/faceMatch/metadata.json")
	assert.JSONEq(t, `{"Jan Novak":[`+
		`{"begin":0,"end":500,"cx":0.2,"cy":0.2},`+
		`{"begin":1000,"end":2000,"cx":0.2,"cy":0.2}]}`, string(meta))

	keys := f.store.Keys(proxyBucket, "video-1/faceMatch/vtt/")
	assert.Equal(t, []string{"video-1/faceMatch/vtt/jan_novak.vtt"}, keys)
	track, err := webvtt.Parse(f.object(t, "video-1/faceMatch/vtt/jan_novak.vtt"))
	require.NoError(t, err)
	require.Len(t, track.Cues, 2)
	assert.Equal(t, "Jan Novak", track.Cues[1].Text)
	assert.Equal(t, "2", track.Cues[1].ID)
	assert.Equal(t, int64(550), track.Cues[1].Duration().Milliseconds())

	doc, err := f.index.Get(ctx, indexName, "video-1")
	require.NoError(t, err)
	assert.Equal(t, "video-1", gjson.GetBytes(doc, "title").String())
	assert.Equal(t, int64(1), gjson.GetBytes(doc, "faceMatch.#").Int())
	assert.Equal(t, "Jan Novak", gjson.GetBytes(doc, "faceMatch.0.name").String())
	assert.Equal(t, "face-a", gjson.GetBytes(doc, "faceMatch.0.faceId").String())
	assert.Equal(t, int64(2), gjson.GetBytes(doc, "faceMatch.0.timecodes.#").Int())

	untouched := f.object(t, "video-2/faceMatch/mapdata.json")
	assert.JSONEq(t, `{"version":1,"data":["face-z"]}`, string(untouched))

	rec, err := f.registry.Lookup(ctx, "face-a")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Jan Novak", rec.Celeb)
	gone, err := f.registry.Lookup(ctx, "face-x")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestReconcileStillImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.Reconcile(ctx, renameAndDelete)
	require.NoError(t, err)

	raw := f.object(t, "image-1/image/faceMatch.json")
	assert.Equal(t, "Jan Novak", gjson.GetBytes(raw, "Faces.0.Name").String())
	assert.True(t, gjson.GetBytes(raw, "Faces.1.MarkDeleted").Bool())
	assert.False(t, f.exists(t, "image-1/faceMatch/mapdata.json"))

	doc, err := f.index.Get(ctx, indexName, "image-1")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Jan Novak","faceId":"face-a","timecodes":[]}]`, gjson.GetBytes(doc, "faceMatch").Raw)
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.Reconcile(ctx, renameAndDelete)
	require.NoError(t, err)
	first := f.snapshot(t)

	res, err := f.rec.Reconcile(ctx, renameAndDelete)
	require.NoError(t, err)
	assert.Equal(t, first, f.snapshot(t))
	for _, a := range res.Artifacts {
		if a.Artifact != ArtifactSearch {
			assert.False(t, a.Changed, "%s/%s changed on second run", a.ContentID, a.Artifact)
		}
	}
}

func TestReconcileSoftDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.Reconcile(ctx, Request{Deletes: []Delete{{FaceID: "face-x"}}})
	require.NoError(t, err)

	mapData := f.object(t, "video-1/faceMatch/mapdata.json")
	assert.NotContains(t, gjson.GetBytes(mapData, "data").String(), "face-x")

	raw := f.object(t, "video-1/faceMatch/raw.json")
	var flagged int
	gjson.GetBytes(raw, "Faces").ForEach(func(_, v gjson.Result) bool {
		if v.Get("FaceId").String() == "face-x" {
			flagged++
			assert.True(t, v.Get("MarkDeleted").Bool())
		}
		return true
	})
	assert.Equal(t, 1, flagged)
	assert.Equal(t, 2, f.registry.Count())
}

func TestReconcilePriorityContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, storage.Put(ctx, f.store, proxyBucket, "video-3/faceMatch/mapdata.json",
		[]byte(`{"version":1,"data":["face-x"]}`)))

	res, err := f.rec.Reconcile(ctx, Request{Deletes: []Delete{{FaceID: "face-x"}}, ContentID: "video-3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"video-3", "image-1", "video-1"}, res.Contents)
	assert.JSONEq(t, `{"version":1,"data":[]}`, string(f.object(t, "video-3/faceMatch/mapdata.json")))
}

type failingUploads struct {
	*storage.MemoryStore
	suffix string
}

func (s *failingUploads) Upload(ctx context.Context, bucket, prefix, name string, data []byte) (string, error) {
	if strings.HasSuffix(name, s.suffix) {
		return "", errors.New("disk full")
	}
	return s.MemoryStore.Upload(ctx, bucket, prefix, name, data)
}

func TestReconcileIsolatesArtifactFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := &failingUploads{MemoryStore: f.store, suffix: "timeseries.json"}
	rec := New(store, proxyBucket, f.registry, f.index, indexName)

	res, err := rec.Reconcile(ctx, renameAndDelete)
	require.ErrorIs(t, err, ErrArtifactsFailed)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, res.RegistryUpdated)

	var failed []string
	for _, a := range res.Artifacts {
		if a.Error != "" {
			failed = append(failed, a.ContentID+"/"+a.Artifact)
		}
	}
	assert.Equal(t, []string{"video-1/timeseries"}, failed)

	assert.JSONEq(t, `{"version":1,"data":["Jan Novak"]}`, string(f.object(t, "video-1/faceMatch/mapdata.json")))
	rec2, err := f.registry.Lookup(ctx, "face-a")
	require.NoError(t, err)
	assert.Empty(t, rec2.Celeb)
}

func TestReconcileMissingAndCorruptArtifacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Delete(ctx, proxyBucket, "video-1/faceMatch/timeseries.json"))
	require.NoError(t, storage.Put(ctx, f.store, proxyBucket, "video-1/faceMatch/mapdata.json", []byte(`{"version":`)))

	res, err := f.rec.Reconcile(ctx, renameAndDelete)
	require.NoError(t, err)
	assert.Zero(t, res.Failed)
	assert.Equal(t, `{"version":`, string(f.object(t, "video-1/faceMatch/mapdata.json")))
	assert.False(t, f.exists(t, "video-1/faceMatch/timeseries.json"))
}

func TestReconcileKeepsUnparseableTargetTrack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	corrupt := "Jan Novak at 00:00:00\n"
	require.NoError(t, storage.Put(ctx, f.store, proxyBucket, "video-1/faceMatch/vtt/jan_novak.vtt", []byte(corrupt)))

	res, err := f.rec.Reconcile(ctx, renameAndDelete)
	require.NoError(t, err)
	assert.Zero(t, res.Failed)
	assert.Equal(t, corrupt, string(f.object(t, "video-1/faceMatch/vtt/jan_novak.vtt")))
	assert.True(t, f.exists(t, "video-1/faceMatch/vtt/face_a.vtt"))
}

func TestReconcileRejectsUnknownCategory(t *testing.T) {
	f := newFixture(t)
	req := renameAndDelete
	req.Category = "objects"
	_, err := f.rec.Reconcile(context.Background(), req)
	assert.Error(t, err)
}

func TestReconcileRegistryError(t *testing.T) {
	f := newFixture(t)
	f.registry.BatchGetError = errors.New("connection refused")
	_, err := f.rec.Reconcile(context.Background(), renameAndDelete)
	assert.ErrorContains(t, err, "resolve faces")
}
