package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed subjects.yaml
var subjectsYAML []byte

type Config struct {
	FaceService FaceServiceConfig
	Attendance  AttendanceConfig
	Geocode     GeocodeConfig
	Database    DatabaseConfig
	Subjects    SubjectsConfig
}

type FaceServiceConfig struct {
	URL     string        // face-analysis backend base URL, defaults to http://localhost:8000
	Timeout time.Duration // per-request timeout (default 30s)
}

// AttendanceConfig holds the gating policy. The threshold and grace period
// are fixed policy defaults from the source system; env overrides exist for
// deployments that need to tune them.
type AttendanceConfig struct {
	MatchThreshold float64       // minimum match percentage to accept (default 70.0)
	GracePeriod    time.Duration // window after class start still counted as Present (default 15m)
	MaxImageBytes  int64         // captured image size limit (default 5 MiB)
}

type GeocodeConfig struct {
	URL     string // reverse geocoding endpoint, defaults to Nominatim
	Timeout time.Duration
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// SubjectsConfig is the static department × semester → subject catalog,
// loaded from the embedded subjects.yaml.
type SubjectsConfig struct {
	Departments map[string]map[int][]string `yaml:"departments"`
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

// envFloat reads an environment variable as a float in (0, 100].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 100 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a time.Duration.
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

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	var subjects SubjectsConfig
	if err := yaml.Unmarshal(subjectsYAML, &subjects); err != nil {
		// Embedded file, so this only fires on a broken build.
		panic("failed to unmarshal embedded subjects.yaml: " + err.Error())
	}

	return &Config{
		FaceService: FaceServiceConfig{
			URL:     envString("FACE_SERVICE_URL", "http://localhost:8000"),
			Timeout: envDuration("FACE_SERVICE_TIMEOUT", 30*time.Second),
		},
		Attendance: AttendanceConfig{
			MatchThreshold: envFloat("MATCH_THRESHOLD", 70.0),
			GracePeriod:    envDuration("GRACE_PERIOD", 15*time.Minute),
			MaxImageBytes:  int64(envInt("MAX_IMAGE_BYTES", 5<<20)),
		},
		Geocode: GeocodeConfig{
			URL:     envString("GEOCODE_URL", "https://nominatim.openstreetmap.org/reverse"),
			Timeout: envDuration("GEOCODE_TIMEOUT", 5*time.Second),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Subjects: subjects,
	}
}
