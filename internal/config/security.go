package config

// SecurityConfig holds settings for the streamable HTTP transport
type SecurityConfig struct {
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" yaml:"cors_allowed_origins" default:"http://localhost:3000"`
	MaxRequestSize     int64    `env:"MAX_REQUEST_SIZE" yaml:"max_request_size" default:"1048576"` // 1MB default
	// AllowedHosts restricts the Host header; empty allows any
	AllowedHosts []string `env:"ALLOWED_HOSTS" yaml:"allowed_hosts"`
}
