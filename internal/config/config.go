package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed quality.yaml
var qualityYAML []byte

type Config struct {
	Embedding EmbeddingConfig
	Database  DatabaseConfig
	Local     LocalConfig
	Storage   StorageConfig
	Photos    PhotosConfig
	Matching  MatchingConfig
	Quality   QualityConfig
	Web       WebConfig
}

type EmbeddingConfig struct {
	URL       string        // defaults to http://localhost:8000
	ModelPack string        // defaults to buffalo_l
	DetWidth  int           // detector input width (default 640)
	DetHeight int           // detector input height (default 640)
	Serialize bool          // serialize inference calls through one mutex (default true)
	Timeout   time.Duration // per-request timeout against the model server
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the embedding HNSW index (optional, rebuilt on startup if empty)
}

// LocalConfig configures the embedded bbolt store used as local mirror or standalone backend.
type LocalConfig struct {
	BoltPath string
}

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
)

type StorageConfig struct {
	Backend string // postgres or bolt
}

type PhotosConfig struct {
	Dir          string // root directory for stored person photos
	MaxImageSize int    // longest side of stored photos in pixels
}

type MatchingConfig struct {
	Threshold              float64       // minimum cosine similarity to accept a match (inclusive)
	TimeBudget             time.Duration // per-request budget for the face loop
	GroupCacheTTL          time.Duration // lifetime of cached group membership
	MaxEmbeddingsPerPerson int           // 0 disables the cap
}

// QualityConfig holds the thresholds applied by the enrollment quality gate.
type QualityConfig struct {
	MinFaceWidth  float64 `yaml:"min_face_width"`
	MinSharpness  float64 `yaml:"min_sharpness"`
	MinBrightness float64 `yaml:"min_brightness"`
	MaxBrightness float64 `yaml:"max_brightness"`
	MinContrast   float64 `yaml:"min_contrast"`
	MaxRoll       float64 `yaml:"max_roll"`
}

type WebConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string
	APIToken       string // optional bearer token required on API routes
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

// envNonNegativeInt is like envInt but accepts zero.
func envNonNegativeInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envDuration accepts Go durations ("700ms") and plain seconds ("0.7").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return time.Duration(f * float64(time.Second))
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// DefaultQuality returns the thresholds from the embedded quality.yaml.
func DefaultQuality() QualityConfig {
	var q QualityConfig
	if err := yaml.Unmarshal(qualityYAML, &q); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded quality.yaml: " + err.Error())
	}
	return q
}

func Load() *Config {
	q := DefaultQuality()

	return &Config{
		Embedding: EmbeddingConfig{
			URL:       envString("EMBEDDING_URL", "http://localhost:8000"),
			ModelPack: envString("EMBEDDING_MODEL_PACK", "buffalo_l"),
			DetWidth:  envInt("EMBEDDING_DET_WIDTH", 640),
			DetHeight: envInt("EMBEDDING_DET_HEIGHT", 640),
			Serialize: envBool("EMBEDDING_SERIALIZE", true),
			Timeout:   envDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Local: LocalConfig{
			BoltPath: envString("LOCAL_DB_PATH", "facepace.db"),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(envString("STORAGE_BACKEND", BackendPostgres)),
		},
		Photos: PhotosConfig{
			Dir:          envString("PHOTOS_DIR", "person_photos"),
			MaxImageSize: envInt("PHOTOS_MAX_IMAGE_SIZE", 1024),
		},
		Matching: MatchingConfig{
			Threshold:              envFloat("FACE_SIM_THRESHOLD", 0.42),
			TimeBudget:             envDuration("MATCH_TIME_BUDGET", 700*time.Millisecond),
			GroupCacheTTL:          envDuration("MATCH_GROUP_CACHE_TTL", 60*time.Second),
			MaxEmbeddingsPerPerson: envNonNegativeInt("MATCH_MAX_EMBEDDINGS_PER_PERSON", 4),
		},
		Quality: QualityConfig{
			MinFaceWidth:  envFloat("QUALITY_MIN_FACE_WIDTH", q.MinFaceWidth),
			MinSharpness:  envFloat("QUALITY_MIN_SHARPNESS", q.MinSharpness),
			MinBrightness: envFloat("QUALITY_MIN_BRIGHTNESS", q.MinBrightness),
			MaxBrightness: envFloat("QUALITY_MAX_BRIGHTNESS", q.MaxBrightness),
			MinContrast:   envFloat("QUALITY_MIN_CONTRAST", q.MinContrast),
			MaxRoll:       envFloat("QUALITY_MAX_ROLL", q.MaxRoll),
		},
		Web: WebConfig{
			Port:           envInt("WEB_PORT", 8000),
			Host:           envString("WEB_HOST", "0.0.0.0"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
			APIToken:       os.Getenv("WEB_API_TOKEN"),
		},
	}
}
