// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Composite batching constants
const (
	// MaxFacesPerIndex is the number of face crops packed into one composite image.
	// One recognition call is issued per composite.
	MaxFacesPerIndex = 21

	// GridColumns and GridRows define the composite layout (row-major).
	// GridColumns*GridRows must be >= MaxFacesPerIndex.
	GridColumns = 7
	GridRows    = 3

	// CellWidth and CellHeight are the pixel size of one face cell (3:4).
	CellWidth  = 120
	CellHeight = 160

	// FullImageMaxSize bounds the down-scaled full image stored next to the thumbnail.
	FullImageMaxSize = 1024

	// JPEGQuality is used for every encoded image.
	JPEGQuality = 85
)

// Face box padding constants
const (
	// FaceAspectWidth and FaceAspectHeight define the target aspect ratio of a crop.
	FaceAspectWidth  = 3.0
	FaceAspectHeight = 4.0

	// FaceBoxScale enlarges the aspect-corrected box so hair and chin are kept.
	FaceBoxScale = 1.5
)

// Partitioning and execution constants
const (
	// MaxConcurrency is the default number of parallel indexer partitions
	MaxConcurrency = 5

	// MaxRetries is the hard ceiling for indexer re-invocations of one partition
	MaxRetries = 100

	// DefaultBudget is the time one indexer invocation may spend before checkpointing
	DefaultBudget = 13 * time.Minute

	// MinReserve is the minimum remaining budget required to start another micro-batch
	MinReserve = 30 * time.Second
)

// Recognition constants
const (
	// AttributeConfidence is the minimum confidence for storing gender and age attributes
	AttributeConfidence = 90.0

	// DefaultMinConfidence is the default detection filter threshold (0-100)
	DefaultMinConfidence = 80.0

	// DefaultMinBoxSize is the default minimum relative face box width and height
	DefaultMinBoxSize = 0.01
)

// Reconciliation constants
const (
	// MapDataVersion is the schema version written to map-data files
	MapDataVersion = 1

	// MinCueDuration is the duration at or below which a WebVTT cue is considered degenerate
	MinCueDuration = 100 * time.Millisecond

	// CueExtension is added to the end of a degenerate cue
	CueExtension = 500 * time.Millisecond

	// ReconcileConcurrency is the default number of content items reconciled in parallel
	ReconcileConcurrency = 8

	// DefaultCategory is the artifact category updated by the reconciler
	DefaultCategory = "faceMatch"
)

// Storage layout constants
const (
	// OperationIndexFaces is the operation name carried by indexer work descriptors
	OperationIndexFaces = "index-faces"

	// ResultsObjectName is the canonical results object under a prefix
	ResultsObjectName = "faces.json"

	// IteratorsDir holds the per-partition objects under a prefix
	IteratorsDir = "iterators"

	// FacesDir holds thumbnails and full images under a prefix
	FacesDir = "faces"
)
