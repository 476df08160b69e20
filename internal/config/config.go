package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Storage     StorageConfig
	Database    DatabaseConfig
	Search      SearchConfig
	Recognition RecognitionConfig
	Indexer     IndexerConfig
	Reconcile   ReconcileConfig
	Web         WebConfig
	Log         LogConfig
}

type StorageConfig struct {
	Path         string // pebble directory; empty selects the in-memory store
	Bucket       string // default bucket for detection lists and results
	ProxyBucket  string // bucket holding derived per-content artifacts
	KeepTempCrop bool   // skip deletion of source crops after aggregation
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL; empty selects the in-memory registry
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
	CacheSize    int    // Registry lookup LRU size (default 4096)
}

type SearchConfig struct {
	Path  string // SQLite file; empty selects the in-memory index
	Index string // index (table namespace) holding content documents
}

type RecognitionConfig struct {
	URL        string  // recognition service base URL
	Collection string  // face collection id
	RateLimit  float64 // requests per second (0 = unlimited)
}

// FilterConfig holds detection filter thresholds passed to every work descriptor.
type FilterConfig struct {
	MinConfidence float64 `yaml:"min_confidence" json:"minConfidence"`
	MinBoxWidth   float64 `yaml:"min_box_width" json:"minBoxWidth"`
	MinBoxHeight  float64 `yaml:"min_box_height" json:"minBoxHeight"`
}

type IndexerConfig struct {
	MaxConcurrency      int           `yaml:"max_concurrency"`
	MaxFacesPerIndex    int           `yaml:"max_faces_per_index"`
	GridColumns         int           `yaml:"grid_columns"`
	GridRows            int           `yaml:"grid_rows"`
	CellWidth           int           `yaml:"cell_width"`
	CellHeight          int           `yaml:"cell_height"`
	FullImageMaxSize    int           `yaml:"full_image_max_size"`
	Budget              time.Duration `yaml:"budget"`
	MinReserve          time.Duration `yaml:"min_reserve"`
	MaxRetries          int           `yaml:"max_retries"`
	AttributeConfidence float64       `yaml:"attribute_confidence"`
	Filter              FilterConfig  `yaml:"filter"`
}

type ReconcileConfig struct {
	Concurrency int    `yaml:"concurrency"`
	Category    string `yaml:"category"`
}

type WebConfig struct {
	Host string
	Port int
}

type LogConfig struct {
	Level string // debug, info, warn, error
	JSON  bool   // production JSON encoder instead of console
}

type defaultsFile struct {
	Indexer   IndexerConfig   `yaml:"indexer"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a non-negative float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a positive time.Duration ("90s", "10m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envString returns the env var value or the default when unset.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var defaults defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	idx := defaults.Indexer

	return &Config{
		Storage: StorageConfig{
			Path:         os.Getenv("STORAGE_PATH"),
			Bucket:       envString("STORAGE_BUCKET", "faces"),
			ProxyBucket:  envString("STORAGE_PROXY_BUCKET", "proxy"),
			KeepTempCrop: os.Getenv("STORAGE_KEEP_TEMP_CROPS") == "true",
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			CacheSize:    envInt("REGISTRY_CACHE_SIZE", 4096),
		},
		Search: SearchConfig{
			Path:  os.Getenv("SEARCH_PATH"),
			Index: envString("SEARCH_INDEX", "content"),
		},
		Recognition: RecognitionConfig{
			URL:        os.Getenv("RECOGNITION_URL"),
			Collection: envString("RECOGNITION_COLLECTION", "faces"),
			RateLimit:  envFloat("RECOGNITION_RATE_LIMIT", 5),
		},
		Indexer: IndexerConfig{
			MaxConcurrency:      envInt("INDEXER_MAX_CONCURRENCY", idx.MaxConcurrency),
			MaxFacesPerIndex:    envInt("INDEXER_MAX_FACES_PER_INDEX", idx.MaxFacesPerIndex),
			GridColumns:         envInt("INDEXER_GRID_COLUMNS", idx.GridColumns),
			GridRows:            envInt("INDEXER_GRID_ROWS", idx.GridRows),
			CellWidth:           envInt("INDEXER_CELL_WIDTH", idx.CellWidth),
			CellHeight:          envInt("INDEXER_CELL_HEIGHT", idx.CellHeight),
			FullImageMaxSize:    envInt("INDEXER_FULL_IMAGE_MAX_SIZE", idx.FullImageMaxSize),
			Budget:              envDuration("INDEXER_BUDGET", idx.Budget),
			MinReserve:          envDuration("INDEXER_MIN_RESERVE", idx.MinReserve),
			MaxRetries:          envInt("INDEXER_MAX_RETRIES", idx.MaxRetries),
			AttributeConfidence: envFloat("INDEXER_ATTRIBUTE_CONFIDENCE", idx.AttributeConfidence),
			Filter: FilterConfig{
				MinConfidence: envFloat("INDEXER_MIN_CONFIDENCE", idx.Filter.MinConfidence),
				MinBoxWidth:   envFloat("INDEXER_MIN_BOX_WIDTH", idx.Filter.MinBoxWidth),
				MinBoxHeight:  envFloat("INDEXER_MIN_BOX_HEIGHT", idx.Filter.MinBoxHeight),
			},
		},
		Reconcile: ReconcileConfig{
			Concurrency: envInt("RECONCILE_CONCURRENCY", defaults.Reconcile.Concurrency),
			Category:    envString("RECONCILE_CATEGORY", defaults.Reconcile.Category),
		},
		Web: WebConfig{
			Host: envString("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 8080),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
			JSON:  os.Getenv("LOG_JSON") == "true",
		},
	}
}

// GridCapacity returns the number of cells in one composite.
func (c *IndexerConfig) GridCapacity() int {
	return c.GridColumns * c.GridRows
}
