package config

// ServiceConfig is the full wayfinderd configuration. Viper decodes through
// mapstructure, so every key carries both tag forms.
type ServiceConfig struct {
	// rpc configs
	Port int    `toml:"port" mapstructure:"port"`
	Host string `toml:"host" mapstructure:"host"`

	// CORS configs
	AllowedOrigins []string `toml:"allowed_origins" mapstructure:"allowed_origins"`

	// rate limiting configs
	RatePerMinute         int `toml:"rate_per_minute" mapstructure:"rate_per_minute"`
	MaxConcurrentRequests int `toml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`

	// OpenTelemetry configs
	ServiceName    string `toml:"service_name" mapstructure:"service_name"`
	ServiceVersion string `toml:"service_version" mapstructure:"service_version"`
	Environment    string `toml:"environment" mapstructure:"environment"` // PROD, DEV, TEST, LOCAL
	EnableTracing  bool   `toml:"enable_tracing" mapstructure:"enable_tracing"`
	UseOTLPTraces  bool   `toml:"use_otlp_traces" mapstructure:"use_otlp_traces"`
	OTLPTracesURL  string `toml:"otlp_traces_url" mapstructure:"otlp_traces_url"`
	EnableMetrics  bool   `toml:"enable_metrics" mapstructure:"enable_metrics"`
	UsePrometheus  bool   `toml:"use_prometheus" mapstructure:"use_prometheus"`
	UseOTLPMetrics bool   `toml:"use_otlp_metrics" mapstructure:"use_otlp_metrics"`
	OTLPMetricsURL string `toml:"otlp_metrics_url" mapstructure:"otlp_metrics_url"`

	InsecureOTLP bool `toml:"insecure_otlp" mapstructure:"insecure_otlp"`

	// Development mode uses stdout exporters
	DevelopmentMode bool `toml:"development_mode" mapstructure:"development_mode"`

	// liquidity snapshot file
	SnapshotPath string `toml:"snapshot_path" mapstructure:"snapshot_path"`

	// execution gates
	ExecutionEnabled bool     `toml:"execution_enabled" mapstructure:"execution_enabled"`
	ProductionChains []string `toml:"production_chains" mapstructure:"production_chains"`

	// chain endpoints, file config only
	Chains []ChainConfig `toml:"chains" mapstructure:"chains"`
}

// ChainConfig wires one chain adapter.
type ChainConfig struct {
	ID       string `toml:"id" mapstructure:"id"`
	Family   string `toml:"family" mapstructure:"family"` // xrpl, evm, solana
	Endpoint string `toml:"endpoint" mapstructure:"endpoint"`
	Network  string `toml:"network" mapstructure:"network"`

	// EVM only
	EVMChainID int64 `toml:"evm_chain_id" mapstructure:"evm_chain_id"`

	// demo signer material; never logged
	DemoAddress string `toml:"demo_address" mapstructure:"demo_address"`
	DemoSecret  string `toml:"demo_secret" mapstructure:"demo_secret"`
	DemoKey     string `toml:"demo_key" mapstructure:"demo_key"`

	ConfirmTimeoutSeconds int `toml:"confirm_timeout_seconds" mapstructure:"confirm_timeout_seconds"`

	// XRPL issued-currency issuers, token symbol -> account
	TokenIssuers map[string]string `toml:"token_issuers" mapstructure:"token_issuers"`
}
