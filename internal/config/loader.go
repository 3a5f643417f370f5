package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the config file and the config directory.
	AppName = "goferry"

	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "GOFERRY"

	// ConfigFileEnv points at an explicit config file.
	ConfigFileEnv = EnvPrefix + "_CONFIG"
)

var (
	configMu  sync.RWMutex
	appConfig *Config

	// userAgentVersion is appended to the default user agent.
	userAgentVersion = "dev"
)

// SetVersion sets the version used in the default HTTP user agent.
func SetVersion(v string) {
	configMu.Lock()
	defer configMu.Unlock()
	if v != "" {
		userAgentVersion = v
	}
}

// EnvSpec maps one environment variable onto a config key.
type EnvSpec struct {
	Name string
	Path string
}

// getEnvSpecs returns the short-form environment variables. Every other key
// is also reachable as GOFERRY_<SECTION>_<KEY>.
func getEnvSpecs() []EnvSpec {
	short := []struct{ suffix, path string }{
		{"LOG_LEVEL", "logging.level"},
		{"LOG_PROFILE", "logging.profile"},
		{"HOST", "server.host"},
		{"PORT", "server.port"},
		{"READ_TIMEOUT", "server.read_timeout"},
		{"WRITE_TIMEOUT", "server.write_timeout"},
		{"SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
		{"DESTINATION_ROOT", "server.destination_root"},
		{"SOURCE_ROOT", "server.source_root"},
		{"ALLOWED_HOSTS", "server.allowed_hosts"},
		{"ON_EXISTS", "transfer.on_exists"},
		{"CONCURRENCY", "batch.concurrency"},
		{"RATE_LIMIT", "batch.rate_limit"},
		{"HTTP_TIMEOUT", "http.timeout"},
		{"HEAD_TIMEOUT", "http.head_timeout"},
		{"S3_REGION", "s3.region"},
		{"S3_ENDPOINT", "s3.endpoint"},
		{"S3_PROFILE", "s3.profile"},
	}
	specs := make([]EnvSpec, 0, len(short))
	for _, s := range short {
		specs = append(specs, EnvSpec{Name: EnvPrefix + "_" + s.suffix, Path: s.path})
	}
	return specs
}

// getUserConfigPaths returns the directories searched for goferry.yaml.
func getUserConfigPaths() []string {
	paths := []string{"."}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, AppName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", AppName))
	}
	return paths
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "console")

	v.SetDefault("http.timeout", "5m")
	v.SetDefault("http.head_timeout", "30s")
	v.SetDefault("http.user_agent", AppName+"/"+userAgentVersion)

	v.SetDefault("transfer.on_exists", "rename")

	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.rate_limit", 0)
	v.SetDefault("batch.progress_every", 100)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.destination_root", "")
	v.SetDefault("server.source_root", "")
	v.SetDefault("server.allowed_hosts", []string{})

	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.force_path_style", false)
}

// Load builds the configuration and stores it for GetConfig.
//
// Each overrides map is nested by section, e.g.
// {"server": {"port": 9000}}, and beats every other layer.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.RLock()
	v := newViper()
	configMu.RUnlock()

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func readConfigFile(v *viper.Viper) error {
	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName(AppName)
	v.SetConfigType("yaml")
	for _, p := range getUserConfigPaths() {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
