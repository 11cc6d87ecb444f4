package serv

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Config is the service configuration, read from a config file with
// ECLIPTIC_-prefixed environment variable overrides.
type Config struct {
	// Application name is used in log and debug messages
	AppName string `mapstructure:"app_name"`

	// When enabled runs the service with production defaults: JSON logs,
	// development auth disabled
	Production bool

	// The host and port the service runs on. Example localhost:8080
	HostPort string `mapstructure:"host_port"`

	// Host to run the service on
	Host string

	// Port to run the service on
	Port string

	// Logging level must be one of debug, error, warn, info
	LogLevel string `mapstructure:"log_level"`

	// Logging format: "auto" (console in dev, JSON in production), "json"
	// or "simple"
	LogFormat string `mapstructure:"log_format"`

	// Path of the catalog database file
	CatalogPath string `mapstructure:"catalog_path"`

	// Directory holding the per-datastore files
	DataDir string `mapstructure:"data_dir"`

	// Language used for error messages when the request names none
	DefaultLocale string `mapstructure:"default_locale"`

	// Allows resolving the organization from the x-ecliptic-org header
	// instead of a session. Forced off in production.
	DevAuth bool `mapstructure:"dev_auth"`

	// Sets the HTTP CORS Access-Control-Allow-Origin header
	AllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	// Sets the HTTP CORS Access-Control-Allow-Headers header
	AllowedHeaders []string `mapstructure:"cors_allowed_headers"`

	// MCP surface configuration
	MCP MCPConfig `mapstructure:"mcp"`

	hostPort string
	viper    *viper.Viper
}

// MCPConfig configures the agent-facing MCP surface.
type MCPConfig struct {
	// Disables the MCP endpoint and the stdio mode
	Disable bool

	// Serve only the MCP endpoint, skipping the management API
	Only bool

	// Key used in stdio mode; the ECLIPTIC_MCP_KEY environment variable
	// takes precedence
	Key string `mapstructure:"key"`

	// Rows returned per page by table_query
	PageSize int `mapstructure:"page_size"`
}

// ReadInConfig reads the configuration file at configFilePath, following one
// level of "inherits" the way deployment configs layer dev.yml on base.yml.
func ReadInConfig(fs afero.Fs, configFilePath string) (*Config, error) {
	cp := filepath.Dir(configFilePath)
	vi := newViper(cp, filepath.Base(configFilePath))
	if fs != nil {
		vi.SetFs(fs)
	}

	if err := vi.ReadInConfig(); err != nil {
		return nil, err
	}

	if pcf := vi.GetString("inherits"); pcf != "" {
		cf := vi.ConfigFileUsed()
		vi = newViper(cp, pcf)
		if fs != nil {
			vi.SetFs(fs)
		}
		if err := vi.ReadInConfig(); err != nil {
			return nil, err
		}
		if v := vi.GetString("inherits"); v != "" {
			return nil, fmt.Errorf("inherited config %s cannot itself inherit %s", pcf, v)
		}

		vi.SetConfigFile(cf)
		if err := vi.MergeInConfig(); err != nil {
			return nil, err
		}
	}

	c := &Config{viper: vi}
	if err := vi.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to decode config, %v", err)
	}
	c.resolveHostPort()
	return c, nil
}

// NewConfig reads configuration from a string, used by tests and embedders.
func NewConfig(config, format string) (*Config, error) {
	vi := newViperWithDefaults()
	vi.SetConfigType(format)
	if err := vi.ReadConfig(strings.NewReader(config)); err != nil {
		return nil, err
	}

	c := &Config{viper: vi}
	if err := vi.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to decode config, %v", err)
	}
	c.resolveHostPort()
	return c, nil
}

func (c *Config) resolveHostPort() {
	switch {
	case c.HostPort != "":
		c.hostPort = c.HostPort
	case c.Port != "":
		host := c.Host
		if host == "" {
			host = "0.0.0.0"
		}
		c.hostPort = host + ":" + c.Port
	default:
		c.hostPort = defaultHP
	}
	if c.Production {
		c.DevAuth = false
	}
}

func newViperWithDefaults() *viper.Viper {
	vi := viper.New()

	vi.SetEnvPrefix("ECLIPTIC")
	vi.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vi.AutomaticEnv()

	vi.SetDefault("app_name", "ecliptic")
	vi.SetDefault("host_port", "")
	vi.SetDefault("host", "")
	vi.SetDefault("port", "")
	vi.SetDefault("log_level", "info")
	vi.SetDefault("log_format", "auto")
	vi.SetDefault("catalog_path", "./ecliptic.db")
	vi.SetDefault("data_dir", "./datastores")
	vi.SetDefault("default_locale", "en")
	vi.SetDefault("dev_auth", false)
	vi.SetDefault("mcp.disable", false)
	vi.SetDefault("mcp.only", false)
	vi.SetDefault("mcp.page_size", 10)

	return vi
}

func newViper(configPath, configFile string) *viper.Viper {
	vi := newViperWithDefaults()
	vi.SetConfigName(strings.TrimSuffix(configFile, filepath.Ext(configFile)))
	vi.AddConfigPath(configPath)
	return vi
}
