package gallery

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.trai.ch/zerr"

	"github.com/eringen/gallery/catalog"
)

// Config holds all configuration for a gallery site. LoadConfig fills it
// from the environment; programmatic callers may build it directly and rely
// on setDefaults for zero values.
type Config struct {
	Name        string `envconfig:"SITE_NAME" default:"Gallery"`
	URL         string `envconfig:"SITE_URL" default:"http://localhost:3000"`
	Description string `envconfig:"SITE_DESCRIPTION"`
	Author      string `envconfig:"SITE_AUTHOR"`
	Intro       string `envconfig:"SITE_INTRO"` // HTML, sanitized before rendering

	Addr      string `envconfig:"ADDR" default:":3000"`
	StaticDir string `envconfig:"STATIC_DIR" default:"public"`

	Cloudinary CloudinaryConfig `envconfig:"CLOUDINARY"`
	Catalog    CatalogConfig    `envconfig:"CATALOG"`
	Preview    PreviewConfig    `envconfig:"PREVIEW"`

	Categories   string `envconfig:"CATEGORIES"`                    // "Label=match,Label=match"
	APIRateLimit string `envconfig:"API_RATE_LIMIT" default:"60/m"` // requests per IP per window, "0" disables

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev   bool   `envconfig:"LOG_DEV"`
}

// CloudinaryConfig selects the remote cloud and credentials.
type CloudinaryConfig struct {
	CloudName    string `envconfig:"CLOUD_NAME" required:"true"`
	APIKey       string `envconfig:"API_KEY"`
	APISecret    string `envconfig:"API_SECRET"`
	Folder       string `envconfig:"FOLDER"`
	APIBase      string `envconfig:"API_BASE"`
	DeliveryBase string `envconfig:"DELIVERY_BASE"`
}

// CatalogConfig tunes the catalog cache.
type CatalogConfig struct {
	MaxResults    int           `envconfig:"MAX_RESULTS" default:"400"`
	TTL           time.Duration `envconfig:"TTL" default:"0s"`
	FetchTimeout  time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	RetryAttempts int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
}

// RequestTimeout bounds one remote attempt so that every retry, with its
// backoff, still fits inside FetchTimeout.
func (c CatalogConfig) RequestTimeout() time.Duration {
	attempts := c.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return c.FetchTimeout / time.Duration(attempts+1)
}

// PreviewConfig tunes blur placeholder generation.
type PreviewConfig struct {
	Policy  string        `envconfig:"POLICY" default:"per-entry"`
	Workers int           `envconfig:"WORKERS" default:"8"`
	RPS     float64       `envconfig:"RPS"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"2m"`
}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = zerr.New("invalid configuration")

// LoadConfig reads the configuration from the environment and validates it.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, zerr.Wrap(err, "failed to load configuration")
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "Gallery"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.StaticDir == "" {
		c.StaticDir = "public"
	}
	if c.Catalog.MaxResults <= 0 {
		c.Catalog.MaxResults = catalog.DefaultMaxResults
	}
	if c.Catalog.FetchTimeout <= 0 {
		c.Catalog.FetchTimeout = 30 * time.Second
	}
	if c.Catalog.RetryAttempts <= 0 {
		c.Catalog.RetryAttempts = 3
	}
	if c.Preview.Policy == "" {
		c.Preview.Policy = string(catalog.PreviewPerEntry)
	}
	if c.Preview.Workers <= 0 {
		c.Preview.Workers = 8
	}
	if c.Preview.Timeout <= 0 {
		c.Preview.Timeout = 2 * time.Minute
	}
	if c.APIRateLimit == "" {
		c.APIRateLimit = "60/m"
	}
}

// Validate checks the values that envconfig cannot.
func (c Config) Validate() error {
	if c.Cloudinary.CloudName == "" {
		return fmt.Errorf("%w: CLOUDINARY_CLOUD_NAME is required", ErrInvalidConfig)
	}
	if _, err := catalog.ParsePreviewPolicy(c.Preview.Policy); err != nil {
		return fmt.Errorf("%w: PREVIEW_POLICY: %v", ErrInvalidConfig, err)
	}
	if _, err := catalog.ParseCategories(c.Categories); err != nil {
		return fmt.Errorf("%w: CATEGORIES: %v", ErrInvalidConfig, err)
	}
	if _, _, err := ParseRateLimit(c.APIRateLimit); err != nil {
		return fmt.Errorf("%w: API_RATE_LIMIT: %v", ErrInvalidConfig, err)
	}
	if c.Catalog.TTL < 0 {
		return fmt.Errorf("%w: CATALOG_TTL must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ParseRateLimit parses "N/unit" where unit is s, m or h (e.g. "60/m").
// "0" disables limiting and returns max 0.
func ParseRateLimit(s string) (max int, window time.Duration, err error) {
	s = strings.TrimSpace(s)
	if s == "0" || s == "" {
		return 0, 0, nil
	}
	n, unit, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, fmt.Errorf("%q: want N/unit", s)
	}
	max, err = strconv.Atoi(n)
	if err != nil || max < 0 {
		return 0, 0, fmt.Errorf("%q: bad count", s)
	}
	switch unit {
	case "s":
		window = time.Second
	case "m":
		window = time.Minute
	case "h":
		window = time.Hour
	default:
		return 0, 0, fmt.Errorf("%q: unit must be s, m or h", s)
	}
	return max, window, nil
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithViews replaces the default page components.
func WithViews(v ViewFuncs) Option {
	return func(a *App) {
		a.Views = v
	}
}
