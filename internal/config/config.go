package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	constants "github.com/CodeAndHammer/lockcards/internal/constants"
	models "github.com/CodeAndHammer/lockcards/internal/models"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Store     StoreConfig    `yaml:"store"`
	Words     WordsConfig    `yaml:"words"`
	Drill     DrillConfig    `yaml:"drill"`
	Primary   LanguageConfig `yaml:"primary"   env-prefix:"PRIMARY_"`
	Secondary LanguageConfig `yaml:"secondary" env-prefix:"SECONDARY_"`
	CORS      CORSConfig     `yaml:"cors"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"             env:"PORT"             env-default:"8080"`
	Env            string        `yaml:"env"              env:"ENV"              env-default:"development"`
	GinMode        string        `yaml:"gin_mode"         env:"GIN_MODE"`
	CookieMaxAge   time.Duration `yaml:"cookie_max_age"   env:"COOKIE_MAX_AGE"   env-default:"720h"`
	StaticCacheAge time.Duration `yaml:"static_cache_age" env:"STATIC_CACHE_AGE" env-default:"5m"`
	RateLimitRPS   int           `yaml:"rate_limit_rps"   env:"RATE_LIMIT_RPS"   env-default:"5"`
	RateLimitBurst int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" env-default:"10"`
	RateLimiterTTL time.Duration `yaml:"rate_limiter_ttl" env:"RATE_LIMITER_TTL" env-default:"1h"`
	SessionTTL     time.Duration `yaml:"session_ttl"      env:"SESSION_TTL"      env-default:"3h"`
}

// StoreConfig selects where lock ledgers are persisted.
type StoreConfig struct {
	Driver string `yaml:"driver" env:"STORE_DRIVER" env-default:"sqlite"`
	Path   string `yaml:"path"   env:"STORE_PATH"   env-default:"data/lockcards.db"`
}

// WordsConfig points at the word list files. BaseURL wins over Dir when set.
type WordsConfig struct {
	Dir     string        `yaml:"dir"      env:"WORDS_DIR"      env-default:"data"`
	BaseURL string        `yaml:"base_url" env:"WORDS_BASE_URL"`
	Timeout time.Duration `yaml:"timeout"  env:"WORDS_TIMEOUT"  env-default:"15s"`
}

type DrillConfig struct {
	LockCounts []int  `yaml:"lock_counts" env:"LOCK_THRESHOLDS" env-separator:","`
	TTSCommand string `yaml:"tts_command" env:"TTS_COMMAND"`
}

type LanguageConfig struct {
	ID         string  `yaml:"id"          env:"ID"`
	Name       string  `yaml:"name"        env:"NAME"`
	SpeechTag  string  `yaml:"speech_tag"  env:"SPEECH_TAG"`
	SpeechRate float64 `yaml:"speech_rate" env:"SPEECH_RATE"`
	Source     string  `yaml:"source"      env:"SOURCE"`
}

type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

var (
	defaultPrimary = models.Language{
		ID: constants.LanguageThai, Name: "Thai", SpeechTag: "th-TH", SpeechRate: 0.6, Source: "words-th.json",
	}
	defaultSecondary = models.Language{
		ID: constants.LanguageJapanese, Name: "Japanese", SpeechTag: "ja-JP", SpeechRate: 0.8, Source: "words-ja.json",
	}
)

// Load reads configuration from environment variables and, when CONFIG_PATH is set,
// a YAML file. Priority: ENV > YAML > defaults (via env-default tags).
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if len(cfg.Drill.LockCounts) == 0 {
		counts, err := ParseLockCounts(constants.DefaultLockCounts)
		if err != nil {
			return nil, fmt.Errorf("config: default lock thresholds: %w", err)
		}
		cfg.Drill.LockCounts = counts
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// ParseLockCounts reads a comma separated threshold list such as "3,5,10".
func ParseLockCounts(raw string) ([]int, error) {
	var counts []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("lock threshold %q: %w", part, err)
		}
		counts = append(counts, n)
	}
	return counts, nil
}

func (c *Config) Validate() error {
	if len(c.Drill.LockCounts) == 0 {
		return errors.New("at least one lock threshold is required")
	}
	for _, n := range c.Drill.LockCounts {
		if n <= 0 {
			return fmt.Errorf("lock threshold must be positive, got %d", n)
		}
	}
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	langs := c.Languages()
	if langs[0].ID == langs[1].ID {
		return fmt.Errorf("languages must differ, both are %q", langs[0].ID)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.GinMode == "release" || c.Server.Env == "production"
}

// Languages returns the two configured drill languages, primary first. Unset fields
// fall back to Thai and Japanese.
func (c *Config) Languages() [2]models.Language {
	return [2]models.Language{
		c.Primary.toLanguage(defaultPrimary),
		c.Secondary.toLanguage(defaultSecondary),
	}
}

func (c *Config) CORSOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORS.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (lc LanguageConfig) toLanguage(fallback models.Language) models.Language {
	lang := fallback
	if lc.ID != "" {
		lang.ID = lc.ID
	}
	if lc.Name != "" {
		lang.Name = lc.Name
	}
	if lc.SpeechTag != "" {
		lang.SpeechTag = lc.SpeechTag
	}
	if lc.SpeechRate > 0 {
		lang.SpeechRate = lc.SpeechRate
	}
	if lc.Source != "" {
		lang.Source = lc.Source
	}
	return lang
}
