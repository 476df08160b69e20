package reconcile

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/tidwall/gjson"
)

// extraFields holds the members of a JSON object that its Go type does not
// declare, so a rewrite carries them through unchanged.
type extraFields map[string]json.RawMessage

// unknownFields collects the members of the object in data not named in known.
func unknownFields(data []byte, known ...string) extraFields {
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil
	}
	var out extraFields
	doc.ForEach(func(k, v gjson.Result) bool {
		if name := k.String(); !slices.Contains(known, name) {
			if out == nil {
				out = extraFields{}
			}
			out[name] = json.RawMessage(v.Raw)
		}
		return true
	})
	return out
}

// marshalWithExtras encodes v and adds every extra member v does not set.
func marshalWithExtras(v any, extra extraFields) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, err
	}
	for name, raw := range extra {
		if _, ok := members[name]; !ok {
			members[name] = raw
		}
	}
	return json.Marshal(members)
}

// mergeExtras combines the extras of two merged records; dst wins on conflicts.
func mergeExtras(dst, src extraFields) extraFields {
	if len(src) == 0 {
		return dst
	}
	out := make(extraFields, len(dst)+len(src))
	maps.Copy(out, src)
	maps.Copy(out, dst)
	return out
}
