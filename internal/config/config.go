package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/boltd.ini"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// Config describes runtime options for boltd. It is read once at start.
type Config struct {
	Environment string
	HTTPAddress string
	Title       string
	LogFile     string
	LogLevel    string

	// Upstream model
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicVersion string
	Model            string
	MaxTokens        int
	UpstreamTimeout  time.Duration
	UpstreamRetries  int
	// Generator picks the default generator: auto (anthropic when a key is
	// set, loopback otherwise), anthropic or loopback.
	Generator string
	// Routes maps model patterns to generator names (anthropic, loopback).
	Routes map[string]string

	// Persistence; "-" disables the ledger, postgres:// selects PostgreSQL.
	LedgerPath string

	// Page rendering
	Theme           string
	ThemeFile       string
	BotPatternsFile string
	ModelMetaFile   string

	// Limits
	RateLimitRPS      float64
	RateLimitBurst    int
	StreamMaxDuration time.Duration
	StreamErrorMarker string
	ShutdownTimeout   time.Duration
}

// LedgerDisabled reports whether usage recording is switched off.
func (c Config) LedgerDisabled() bool {
	return strings.TrimSpace(c.LedgerPath) == "-"
}

// LedgerIsPostgres reports whether LedgerPath is a PostgreSQL DSN.
func (c Config) LedgerIsPostgres() bool {
	p := strings.ToLower(strings.TrimSpace(c.LedgerPath))
	return strings.HasPrefix(p, "postgres://") || strings.HasPrefix(p, "postgresql://")
}

// Debug reports whether debug logging is on.
func (c Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

// Load reads the current environment and loads the matching boltd config file.
// Environment variables override file values.
func Load(root string) (Config, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return Config{}, err
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return Config{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}

	cfg := Config{
		Environment:       s.Environment,
		HTTPAddress:       firstNonEmpty(os.Getenv("BOLT_HTTP_ADDRESS"), merged["http_address"], ":5173"),
		Title:             firstNonEmpty(os.Getenv("BOLT_TITLE"), merged["title"], "Bolt"),
		LogFile:           firstNonEmpty(os.Getenv("BOLT_LOG_FILE"), merged["log_file"]),
		LogLevel:          strings.ToLower(firstNonEmpty(os.Getenv("BOLT_LOG_LEVEL"), merged["log_level"], "info")),
		AnthropicAPIKey:   firstNonEmpty(os.Getenv("BOLT_ANTHROPIC_API_KEY"), os.Getenv("ANTHROPIC_API_KEY"), merged["anthropic_api_key"]),
		AnthropicBaseURL:  firstNonEmpty(os.Getenv("BOLT_ANTHROPIC_BASE_URL"), merged["anthropic_base_url"]),
		AnthropicVersion:  firstNonEmpty(os.Getenv("BOLT_ANTHROPIC_VERSION"), merged["anthropic_version"], "2023-06-01"),
		Model:             firstNonEmpty(os.Getenv("ANTHROPIC_MODEL"), os.Getenv("BOLT_MODEL"), merged["model"], "claude-haiku-4-5-20251001"),
		LedgerPath:        firstNonEmpty(os.Getenv("BOLT_LEDGER_PATH"), merged["ledger_path"], DefaultLedgerPath()),
		Theme:             strings.ToLower(firstNonEmpty(os.Getenv("BOLT_THEME"), merged["theme"], "light")),
		ThemeFile:         firstNonEmpty(os.Getenv("BOLT_THEME_FILE"), merged["theme_file"]),
		BotPatternsFile:   firstNonEmpty(os.Getenv("BOLT_BOT_PATTERNS_FILE"), merged["bot_patterns_file"]),
		ModelMetaFile:     firstNonEmpty(os.Getenv("BOLT_MODEL_META_FILE"), merged["model_meta_file"]),
		StreamErrorMarker: firstNonEmpty(os.Getenv("BOLT_STREAM_ERROR_MARKER"), merged["stream_error_marker"]),
		Generator:         strings.ToLower(firstNonEmpty(os.Getenv("BOLT_GENERATOR"), merged["generator"], "auto")),
		Routes:            parseRoutes(firstNonEmpty(os.Getenv("BOLT_ROUTES"), merged["routes"])),
	}

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"max_tokens", 8192, &cfg.MaxTokens},
		{"upstream_retries", 1, &cfg.UpstreamRetries},
		{"rate_limit_burst", 20, &cfg.RateLimitBurst},
	}
	for _, it := range ints {
		v, err := parseOptionalInt(lookup(merged, it.key), it.fallback)
		if err != nil {
			return Config{}, err
		}
		*it.dst = v
	}

	rps := lookup(merged, "rate_limit_rps")
	cfg.RateLimitRPS = 5
	if strings.TrimSpace(rps) != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(rps), 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid rate_limit_rps %q: %w", rps, err)
		}
		cfg.RateLimitRPS = parsed
	}

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"upstream_timeout", 60 * time.Second, &cfg.UpstreamTimeout},
		{"stream_max_duration", 0, &cfg.StreamMaxDuration},
		{"shutdown_timeout", 15 * time.Second, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		v, err := parseOptionalDuration(lookup(merged, d.key), d.fallback)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	if c.Theme != "light" && c.Theme != "dark" {
		return fmt.Errorf("invalid theme %q (want light or dark)", c.Theme)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("invalid max_tokens %d", c.MaxTokens)
	}
	switch c.Generator {
	case "auto", "loopback":
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return errors.New("generator=anthropic requires an anthropic api key")
		}
	default:
		return fmt.Errorf("invalid generator %q (want auto, anthropic or loopback)", c.Generator)
	}
	if c.UpstreamRetries < 0 {
		return fmt.Errorf("invalid upstream_retries %d", c.UpstreamRetries)
	}
	if c.StreamMaxDuration < 0 {
		return fmt.Errorf("invalid stream_max_duration %s", c.StreamMaxDuration)
	}
	for pattern, target := range c.Routes {
		if target != "anthropic" && target != "loopback" {
			return fmt.Errorf("invalid route %s=%s (unknown generator)", pattern, target)
		}
	}
	return nil
}

// lookup returns BOLT_<KEY> from the environment, else the file value.
func lookup(merged map[string]string, key string) string {
	return firstNonEmpty(os.Getenv("BOLT_"+strings.ToUpper(key)), merged[key])
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: firstNonEmpty(os.Getenv("BOLT_ENV"), defaultEnv), Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := firstNonEmpty(os.Getenv("BOLT_ENV"), values["environment"], defaultEnv)
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseOptionalInt(v string, fallback int) (int, error) {
	if strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", v, err)
	}
	return parsed, nil
}

func parseOptionalDuration(v string, fallback time.Duration) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback, nil
	}
	if v == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseRoutes parses model routing rules from a comma-separated string.
//
//	claude-* = anthropic, loopback = loopback
//	claude-*=>anthropic
func parseRoutes(input string) map[string]string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	routes := make(map[string]string)
	for _, e := range strings.Split(input, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		var kv []string
		if strings.Contains(e, "=>") {
			kv = strings.SplitN(e, "=>", 2)
		} else {
			kv = strings.SplitN(e, "=", 2)
		}
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		if key != "" && val != "" {
			routes[key] = val
		}
	}
	if len(routes) == 0 {
		return nil
	}
	return routes
}

// DefaultLedgerPath returns the fallback ledger location under the user's home directory.
func DefaultLedgerPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ledger.db"
	}
	return filepath.Join(home, ".boltstream", "ledger.db")
}
