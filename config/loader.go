package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadServiceConfig loads the service config from the given path, or from
// WAYFINDER_ env vars when no path is given.
func LoadServiceConfig(configPath *string) (*ServiceConfig, error) {
	v := viper.New()

	if configPath == nil {
		// if no file expect envs
		config, err := loadEnv(v)
		if err != nil {
			return nil, fmt.Errorf("failed to load env config: %w", err)
		}
		return config, nil
	}
	config, err := loadFile(v, *configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load file config: %w", err)
	}
	return config, nil
}

func loadEnv(v *viper.Viper) (*ServiceConfig, error) {
	// godot might fail if .env file is missing but
	// env can be applied through docker, systemd or other means, so skip error
	_ = godotenv.Load()
	v.SetEnvPrefix("WAYFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var config ServiceConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal env config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}
	return &config, nil
}

// bindEnvKeys binds each config key to its env var so Unmarshal sees env values
// when no config file is loaded (env-only mode). Chain blocks are file-only:
// nested tables do not map onto flat env vars.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"port", "host", "allowed_origins",
		"rate_per_minute", "max_concurrent_requests",
		"service_name", "service_version", "environment",
		"enable_tracing", "use_otlp_traces", "otlp_traces_url",
		"enable_metrics", "use_prometheus", "use_otlp_metrics", "otlp_metrics_url",
		"insecure_otlp", "development_mode",
		"snapshot_path", "execution_enabled", "production_chains",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

func loadFile(v *viper.Viper, configPath string) (*ServiceConfig, error) {
	if !strings.HasSuffix(configPath, ".toml") {
		return nil, fmt.Errorf("config file must be a toml file")
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ServiceConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}

	return &config, nil
}

func verifyConfig(config *ServiceConfig) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if config.Host == "" {
		return fmt.Errorf("host is required")
	}

	if len(config.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed_origins is required")
	}

	if config.SnapshotPath == "" {
		return fmt.Errorf("snapshot_path is required")
	}

	seen := map[string]bool{}
	for i, chain := range config.Chains {
		if chain.ID == "" {
			return fmt.Errorf("chains[%d]: id is required", i)
		}
		if seen[chain.ID] {
			return fmt.Errorf("chains[%d]: duplicate chain id %q", i, chain.ID)
		}
		seen[chain.ID] = true

		switch chain.Family {
		case "xrpl", "evm", "solana":
		default:
			return fmt.Errorf("chains[%d]: family must be xrpl, evm or solana", i)
		}
		if chain.Endpoint == "" {
			return fmt.Errorf("chains[%d]: endpoint is required", i)
		}
		if chain.Family == "evm" && chain.EVMChainID <= 0 {
			return fmt.Errorf("chains[%d]: evm_chain_id is required for evm chains", i)
		}
	}

	for _, id := range config.ProductionChains {
		if !seen[id] {
			return fmt.Errorf("production_chains references unknown chain %q", id)
		}
	}

	return nil
}
