package reconcile

import (
	"fmt"
	"path"
)

// Category describes where one kind of recognition result lives. Every lookup
// the reconciler makes goes through this table.
type Category struct {
	Name      string // request value ("faceMatch", "celeb")
	DocField  string // search document field holding the face-match entries
	Dir       string // artifact directory under <contentId>/
	RawArray  string // array path inside the raw recognition JSON
	IDField   string // per-entry face id field in the raw JSON
	NameField string // per-entry display name field in the raw JSON
}

var categories = map[string]Category{
	"faceMatch": {
		Name:      "faceMatch",
		DocField:  "faceMatch",
		Dir:       "faceMatch",
		RawArray:  "Faces",
		IDField:   "FaceId",
		NameField: "Name",
	},
	"celeb": {
		Name:      "celeb",
		DocField:  "celeb",
		Dir:       "celeb",
		RawArray:  "Celebrities",
		IDField:   "Id",
		NameField: "Name",
	},
}

// LookupCategory returns the table entry for name.
func LookupCategory(name string) (Category, error) {
	c, ok := categories[name]
	if !ok {
		return Category{}, fmt.Errorf("unknown category %q", name)
	}
	return c, nil
}

// SearchField is the flattened search path matched during discovery.
func (c Category) SearchField() string {
	return c.DocField + ".faceId"
}

func (c Category) mapDataKey(contentID string) string {
	return path.Join(contentID, c.Dir, "mapdata.json")
}

func (c Category) rawKey(contentID string) string {
	return path.Join(contentID, c.Dir, "raw.json")
}

func (c Category) timeSeriesKey(contentID string) string {
	return path.Join(contentID, c.Dir, "timeseries.json")
}

func (c Category) metadataKey(contentID string) string {
	return path.Join(contentID, c.Dir, "metadata.json")
}

func (c Category) trackKey(contentID, slug string) string {
	return path.Join(contentID, c.Dir, "vtt", slug+".vtt")
}

// stillKey is the single recognition document of a still image.
func (c Category) stillKey(contentID string) string {
	return path.Join(contentID, "image", c.Name+".json")
}
