package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

type Config struct {
	Database DatabaseConfig
	Web      WebConfig
	Policy   PolicyConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type WebConfig struct {
	Host string
	Port int

	// AllowedOrigins lists frontend origins permitted by CORS.
	// Localhost is always allowed regardless of this list.
	AllowedOrigins []string
}

// PolicyConfig holds the attendance policy knobs. Defaults come from the
// embedded policy.yaml; each value can be overridden through the environment.
type PolicyConfig struct {
	LatenessCutoff      string  `yaml:"lateness_cutoff"`      // HH:MM:SS clock time
	ConfidenceThreshold float64 `yaml:"confidence_threshold"` // 0-100
	OvernightCorrection bool    `yaml:"overnight_correction"`
}

type policyFile struct {
	Policy PolicyConfig `yaml:"policy"`
}

// CutoffClock parses the lateness cutoff into seconds since midnight.
func (p *PolicyConfig) CutoffClock() (int, error) {
	t, err := time.Parse("15:04:05", p.LatenessCutoff)
	if err != nil {
		return 0, fmt.Errorf("invalid lateness cutoff %q: %w", p.LatenessCutoff, err)
	}
	return t.Hour()*3600 + t.Minute()*60 + t.Second(), nil
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

// envFloat reads an environment variable and parses it as a float.
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

// envList reads a comma-separated environment variable into a slice.
func envList(key string) []string {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	var pf policyFile
	if err := yaml.Unmarshal(policyYAML, &pf); err != nil {
		// Embedded file, so this can only fail if the file is edited badly.
		panic("failed to unmarshal embedded policy.yaml: " + err.Error())
	}

	policy := pf.Policy
	if v := os.Getenv("ATTENDANCE_LATENESS_CUTOFF"); v != "" {
		policy.LatenessCutoff = v
	}
	policy.ConfidenceThreshold = envFloat("ATTENDANCE_CONFIDENCE_THRESHOLD", policy.ConfidenceThreshold)

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Web: WebConfig{
			Host:           envOr("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Policy: policy,
	}
}
