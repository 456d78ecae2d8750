package config

import "time"

// Transports
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ScheduleConfig holds the optional periodic collection
type ScheduleConfig struct {
	// Cron uses six fields, seconds first; empty disables the scheduler
	Cron      string `env:"SCHEDULE_CRON" yaml:"cron"`
	ForceFull bool   `env:"SCHEDULE_FORCE_FULL" yaml:"force_full"`
}

// MCPConfig holds the tool server settings
type MCPConfig struct {
	Transport string `env:"MCP_TRANSPORT" yaml:"transport" default:"stdio"`
	Path      string `env:"MCP_PATH" yaml:"path" default:"/mcp"`
	Name      string `env:"MCP_SERVER_NAME" yaml:"name" default:"librus-mcp"`
	// ToolTimeout bounds read-only tool calls; scrape uses scraping.run_timeout
	ToolTimeout time.Duration `env:"MCP_TOOL_TIMEOUT" yaml:"tool_timeout" default:"30s"`
}

// QueryConfig holds the summary windows
type QueryConfig struct {
	HomeworkDays int `env:"QUERY_HOMEWORK_DAYS" yaml:"homework_days" default:"7"`
}
