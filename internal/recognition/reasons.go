package recognition

import "strings"

// Unindexed reasons reported by the service.
const (
	ReasonExceedsMaxFaces = "EXCEEDS_MAX_FACES"
	ReasonExtremePose     = "EXTREME_POSE"
	ReasonLowBrightness   = "LOW_BRIGHTNESS"
	ReasonLowSharpness    = "LOW_SHARPNESS"
	ReasonLowConfidence   = "LOW_CONFIDENCE"
	ReasonSmallBox        = "SMALL_BOUNDING_BOX"
	ReasonLowFaceQuality  = "LOW_FACE_QUALITY"
)

var reasonText = map[string]string{
	ReasonExceedsMaxFaces: "too many faces",
	ReasonExtremePose:     "extreme pose",
	ReasonLowBrightness:   "too dark",
	ReasonLowSharpness:    "too blurry",
	ReasonLowConfidence:   "low confidence",
	ReasonSmallBox:        "too small",
	ReasonLowFaceQuality:  "low quality",
}

// DescribeReasons maps service reasons to a human readable message.
// Unknown reasons are passed through lower-cased.
func DescribeReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "face not indexed"
	}
	texts := make([]string, 0, len(reasons))
	seen := make(map[string]bool, len(reasons))
	for _, r := range reasons {
		text, ok := reasonText[r]
		if !ok {
			text = strings.ToLower(strings.ReplaceAll(r, "_", " "))
		}
		if seen[text] {
			continue
		}
		seen[text] = true
		texts = append(texts, text)
	}
	return strings.Join(texts, ", ")
}
