// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "CLIPRUNNER"

// Config aggregates configuration for the application.
type Config struct {
	Region          string           `mapstructure:"region"`
	Watch           WatchConfig      `mapstructure:"watch"`
	Storage         StorageConfig    `mapstructure:"storage"`
	Quarantine      QuarantineConfig `mapstructure:"quarantine"`
	Signing         SigningConfig    `mapstructure:"signing"`
	Notify          NotifyConfig     `mapstructure:"notify"`
	Health          HealthConfig     `mapstructure:"health"`
	Debug           DebugConfig      `mapstructure:"debug"`
	ShutdownTimeout time.Duration    `mapstructure:"shutdown_timeout"`
}

type WatchConfig struct {
	Dir         string        `mapstructure:"dir"`
	Extension   string        `mapstructure:"extension"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

type StorageConfig struct {
	Provider      string        `mapstructure:"provider"`
	Bucket        string        `mapstructure:"bucket"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	Endpoint      string        `mapstructure:"endpoint"`
	UsePathStyle  bool          `mapstructure:"use_path_style"`
	InsecureTLS   bool          `mapstructure:"insecure_tls"`
	RoleARN       string        `mapstructure:"role_arn"`
	BasePath      string        `mapstructure:"base_path"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
}

type QuarantineConfig struct {
	Dir      string `mapstructure:"dir"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

type SigningConfig struct {
	Domain       string        `mapstructure:"domain"`
	KeyPairID    string        `mapstructure:"key_pair_id"`
	KeyParameter string        `mapstructure:"key_parameter"`
	KeyFile      string        `mapstructure:"key_file"`
	TTL          time.Duration `mapstructure:"ttl"`
}

type NotifyConfig struct {
	Backend        string        `mapstructure:"backend"`
	TopicARN       string        `mapstructure:"topic_arn"`
	QueueURL       string        `mapstructure:"queue_url"`
	NATSURL        string        `mapstructure:"nats_url"`
	Subject        string        `mapstructure:"subject"`
	Title          string        `mapstructure:"title"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type DebugConfig struct {
	// PprofPort enables the profiling server when positive.
	PprofPort int `mapstructure:"pprof_port"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Region: "ap-southeast-2",
		Watch: WatchConfig{
			Dir:         "/tmp/videos",
			Extension:   ".mp4",
			SettleDelay: time.Second,
		},
		Storage: StorageConfig{
			Provider:      "s3",
			KeyPrefix:     "videos",
			BasePath:      "/tmp/cliprunner-store",
			UploadTimeout: 60 * time.Second,
		},
		Quarantine: QuarantineConfig{
			Dir:      "/tmp/videos-failed-upload",
			MaxBytes: 100 * 1024 * 1024,
		},
		Signing: SigningConfig{
			KeyParameter: "/eyeseeyou/cloudfront-private-key",
			TTL:          30 * 24 * time.Hour,
		},
		Notify: NotifyConfig{
			Backend:        "sns",
			NATSURL:        "nats://127.0.0.1:4222",
			Subject:        "clips.human_detected",
			Title:          "Human Detected",
			PublishTimeout: 30 * time.Second,
		},
		Health: HealthConfig{
			Enabled: true,
			Port:    8090,
		},
		ShutdownTimeout: 30 * time.Second,
	}
}

// Unprefixed variables accepted for compatibility with existing deployments.
// The prefixed form wins when both are set.
var legacyEnv = map[string]string{
	"region":           "AWS_REGION",
	"storage.bucket":   "S3_BUCKET",
	"notify.topic_arn": "SNS_TOPIC_ARN",
	"watch.dir":        "VIDEO_DIR",
	"signing.domain":   "CLOUDFRONT_DOMAIN",
}

// Load reads configuration from a .env file, config.yaml in the working
// directory and environment variables, in increasing order of precedence.
// Environment variables use the prefix "CLIPRUNNER" and the dot character
// in keys is replaced by an underscore. For example, "storage.bucket"
// becomes "CLIPRUNNER_STORAGE_BUCKET".
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	for key, env := range legacyEnv {
		_ = v.BindEnv(key, envName(key), env)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.Storage.KeyPrefix = strings.Trim(cfg.Storage.KeyPrefix, "/")
	return cfg, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	fail := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if c.Region == "" {
		fail("region is required")
	}
	if c.Watch.Dir == "" {
		fail("watch.dir is required")
	}

	switch c.Storage.Provider {
	case "s3":
	case "file":
		if c.Storage.BasePath == "" {
			fail("storage.base_path is required for the file provider")
		}
	default:
		fail("storage.provider must be s3 or file, got %q", c.Storage.Provider)
	}
	if c.Storage.Bucket == "" {
		fail("storage.bucket is required")
	}
	if c.Quarantine.MaxBytes <= 0 {
		fail("quarantine.max_bytes must be positive")
	}

	if err := c.Signing.validate(); err != nil {
		result = multierror.Append(result, err)
	}

	switch c.Notify.Backend {
	case "sns":
		if c.Notify.TopicARN == "" {
			fail("notify.topic_arn is required for the sns backend")
		}
	case "sqs":
		if c.Notify.QueueURL == "" {
			fail("notify.queue_url is required for the sqs backend")
		}
	case "nats":
		if c.Notify.NATSURL == "" || c.Notify.Subject == "" {
			fail("notify.nats_url and notify.subject are required for the nats backend")
		}
	default:
		fail("notify.backend must be sns, sqs or nats, got %q", c.Notify.Backend)
	}

	if c.Health.Enabled && (c.Health.Port <= 0 || c.Health.Port > 65535) {
		fail("health.port %d is out of range", c.Health.Port)
	}
	return result.ErrorOrNil()
}

// ValidateSigning checks only what the sign command needs.
func (c *Config) ValidateSigning() error {
	return c.Signing.validate()
}

func (s SigningConfig) validate() error {
	var result *multierror.Error
	if s.Domain == "" {
		result = multierror.Append(result, errors.New("signing.domain is required"))
	}
	if s.KeyPairID == "" {
		result = multierror.Append(result, errors.New("signing.key_pair_id is required"))
	}
	if s.KeyParameter == "" && s.KeyFile == "" {
		result = multierror.Append(result, errors.New("one of signing.key_parameter or signing.key_file is required"))
	}
	if s.TTL <= 0 {
		result = multierror.Append(result, errors.New("signing.ttl must be positive"))
	}
	return result.ErrorOrNil()
}
