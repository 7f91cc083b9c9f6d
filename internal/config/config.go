package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server   ServerConfig             `yaml:"server"`
	Database DatabaseConfig           `yaml:"database"`
	NATS     NATSConfig               `yaml:"nats"`
	Networks map[string]NetworkConfig `yaml:"networks"`
	Intent   IntentConfig             `yaml:"intent"`
	Pricing  PricingConfig            `yaml:"pricing"`
	Sweeper  SweeperConfig            `yaml:"sweeper"`
	CORS     CORSConfig               `yaml:"cors"`
	Admin    AdminConfig              `yaml:"admin"`
}

// ServerConfig HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig watcher feed configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`        // seconds
	ReconnectWait int    `yaml:"reconnect_wait"` // seconds
	SubjectPrefix string `yaml:"subject_prefix"` // observations arrive on <prefix>.<network>.tx
	Enabled       bool   `yaml:"enabled"`
}

// NetworkConfig per-network runtime configuration. Static chain facts
// (family, confirmations, address format) live in the registry; this carries
// the deployment-specific pieces.
type NetworkConfig struct {
	RPCEndpoints   []string `yaml:"rpcEndpoints"`
	RPCUser        string   `yaml:"rpcUser"`     // UTXO node credentials
	RPCPassword    string   `yaml:"rpcPassword"` // UTXO node credentials
	DepositAddress string   `yaml:"depositAddress"`
	Enabled        bool     `yaml:"enabled"`
}

// IntentConfig payment intent policy
type IntentConfig struct {
	TTLMinutes int `yaml:"ttlMinutes"` // expiry window for unmatched intents
	NonceWidth int `yaml:"nonceWidth"` // decimal digits replaced by the amount nonce
}

// TTL returns the configured intent lifetime
func (c IntentConfig) TTL() time.Duration {
	if c.TTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.TTLMinutes) * time.Minute
}

// PricingConfig fiat valuation configuration
type PricingConfig struct {
	FiatCurrency    string            `yaml:"fiatCurrency"`
	QuoteURL        string            `yaml:"quoteUrl"` // price feed endpoint; empty disables remote refresh
	IntervalSeconds int               `yaml:"intervalSeconds"`
	StaticQuotes    map[string]string `yaml:"staticQuotes"` // assetId -> price, seed/fallback values
}

// SweeperConfig expiry sweeper configuration
type SweeperConfig struct {
	IntervalSeconds int `yaml:"intervalSeconds"`
	BatchLimit      int `yaml:"batchLimit"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// AdminConfig admin API access configuration
type AdminConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
}

var AppConfig *Config

// LoadConfig loads the configuration file and applies environment overrides
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)

	AppConfig = &config
	log.Printf("✅ Configuration loaded from %s (%d networks)", configPath, len(config.Networks))
	return nil
}

// overrideFromEnv applies environment variable overrides
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
		config.NATS.Enabled = true
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		config.Admin.JWTSecret = secret
	}

	if quoteURL := os.Getenv("PRICE_QUOTE_URL"); quoteURL != "" {
		config.Pricing.QuoteURL = quoteURL
	}

	for networkName, networkConfig := range config.Networks {
		envRPC := fmt.Sprintf("%s_RPC_ENDPOINTS", strings.ToUpper(networkName))
		if rpcEndpoints := os.Getenv(envRPC); rpcEndpoints != "" {
			networkConfig.RPCEndpoints = strings.Split(rpcEndpoints, ",")
		}
		envUser := fmt.Sprintf("%s_RPC_USER", strings.ToUpper(networkName))
		if user := os.Getenv(envUser); user != "" {
			networkConfig.RPCUser = user
		}
		envPass := fmt.Sprintf("%s_RPC_PASSWORD", strings.ToUpper(networkName))
		if pass := os.Getenv(envPass); pass != "" {
			networkConfig.RPCPassword = pass
		}
		envDeposit := fmt.Sprintf("%s_DEPOSIT_ADDRESS", strings.ToUpper(networkName))
		if addr := os.Getenv(envDeposit); addr != "" {
			networkConfig.DepositAddress = addr
		}
		config.Networks[networkName] = networkConfig
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}

// GetNetworkConfig returns the runtime configuration for a network
func GetNetworkConfig(networkName string) (*NetworkConfig, error) {
	if AppConfig == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	network, exists := AppConfig.Networks[networkName]
	if !exists {
		return nil, fmt.Errorf("network %s not found in config", networkName)
	}

	if !network.Enabled {
		return nil, fmt.Errorf("network %s is disabled", networkName)
	}

	return &network, nil
}
