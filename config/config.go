package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Locale values accepted for ambiguous xx/xx/yyyy dates. The locale decides;
// the pipeline never guesses from the digits.
const (
	LocaleDayFirst   = "day-first"
	LocaleMonthFirst = "month-first"
)

type Config struct {
	Recon      ReconConfig      `yaml:"recon"`
	Sources    SourcesConfig    `yaml:"sources"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Comparator ComparatorConfig `yaml:"comparator"`
	Output     OutputConfig     `yaml:"output"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ReconConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type SourcesConfig struct {
	NBIM    SourceConfig `yaml:"nbim"`
	Custody SourceConfig `yaml:"custody"`
}

type SourceConfig struct {
	Path    string `yaml:"path"`
	Mapping string `yaml:"mapping"` // optional header-mapping file; built-in rules when empty
}

type NormalizerConfig struct {
	// DateFormats is the allowlist of accepted input date layouts in Go
	// reference-time notation. "02/01/2006" and "01/02/2006" are selected
	// through Locale, not listed here.
	DateFormats []string `yaml:"date_formats"`
	Locale      string   `yaml:"locale"`
	// Strict aborts the whole run on the first malformed row instead of
	// skipping it. Identity mapping failures abort regardless.
	Strict bool `yaml:"strict"`
}

type ComparatorConfig struct {
	ToleranceAmount string `yaml:"tolerance_amount"`
	ToleranceFX     string `yaml:"tolerance_fx"`
}

type OutputConfig struct {
	Dir     string `yaml:"dir"`
	Parquet bool   `yaml:"parquet"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

// DefaultDateFormats is the baseline allowlist applied when the config does
// not override it. Slash-separated day/month layouts are locale-driven and
// appended by the normalizer.
var DefaultDateFormats = []string{
	"2006-01-02",
	"02.01.2006",
	"2006/01/02",
	"20060102",
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Normalizer: NormalizerConfig{
			Locale: LocaleDayFirst,
		},
		Comparator: ComparatorConfig{
			ToleranceAmount: "0.01",
			ToleranceFX:     "0.000001",
		},
		Output: OutputConfig{
			Dir: "out",
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if len(config.Normalizer.DateFormats) == 0 {
		config.Normalizer.DateFormats = append([]string(nil), DefaultDateFormats...)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Recon.Name == "" {
		return fmt.Errorf("recon.name is required")
	}

	if cfg.Recon.Version == "" {
		return fmt.Errorf("recon.version is required")
	}

	if cfg.Sources.NBIM.Path == "" {
		return fmt.Errorf("sources.nbim.path is required")
	}
	if cfg.Sources.Custody.Path == "" {
		return fmt.Errorf("sources.custody.path is required")
	}

	switch cfg.Normalizer.Locale {
	case LocaleDayFirst, LocaleMonthFirst:
	default:
		return fmt.Errorf("normalizer.locale must be %q or %q", LocaleDayFirst, LocaleMonthFirst)
	}

	if _, err := decimal.NewFromString(cfg.Comparator.ToleranceAmount); err != nil {
		return fmt.Errorf("comparator.tolerance_amount %q is not a decimal", cfg.Comparator.ToleranceAmount)
	}
	if _, err := decimal.NewFromString(cfg.Comparator.ToleranceFX); err != nil {
		return fmt.Errorf("comparator.tolerance_fx %q is not a decimal", cfg.Comparator.ToleranceFX)
	}

	if cfg.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

// ToleranceAmountDecimal returns the parsed amount tolerance. validateConfig
// guarantees the string parses.
func (c *ComparatorConfig) ToleranceAmountDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(c.ToleranceAmount)
	return d
}

// ToleranceFXDecimal returns the parsed fx tolerance.
func (c *ComparatorConfig) ToleranceFXDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(c.ToleranceFX)
	return d
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
