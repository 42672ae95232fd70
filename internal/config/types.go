package config

import "time"

// Config is the root configuration for tagstream.
type Config struct {
	Provider ProviderConfig `yaml:"provider,omitempty"`
	Failover FailoverConfig `yaml:"failover,omitempty"`
	Engine   EngineConfig   `yaml:"engine,omitempty"`
	Grammar  GrammarConfig  `yaml:"grammar,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Channels ChannelsConfig `yaml:"channels,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Hooks    HooksConfig    `yaml:"hooks,omitempty"`
}

// ProviderConfig selects the model backend and the request parameters.
type ProviderConfig struct {
	Backend     string   `yaml:"backend,omitempty"` // "gemini" | "openai" | "anthropic"
	BaseURL     string   `yaml:"baseUrl,omitempty"`
	MaxTokens   int      `yaml:"maxTokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	System      string   `yaml:"system,omitempty"`
}

// FailoverConfig lists the credential pool and the model priority order.
type FailoverConfig struct {
	Credentials     []string      `yaml:"credentials,omitempty"`
	Models          []string      `yaml:"models,omitempty"`
	ShortBlock      time.Duration `yaml:"shortBlock,omitempty"`
	LongBlock       time.Duration `yaml:"longBlock,omitempty"`
	PermissionBlock time.Duration `yaml:"permissionBlock,omitempty"`
}

// EngineConfig tunes the turn orchestrator.
type EngineConfig struct {
	MaxOverloadAttempts int           `yaml:"maxOverloadAttempts,omitempty"`
	BaseDelay           time.Duration `yaml:"baseDelay,omitempty"`
	MaxRotations        int           `yaml:"maxRotations,omitempty"`
	EchoDetection       bool          `yaml:"echoDetection,omitempty"`
}

// GrammarConfig holds the tag vocabularies.
type GrammarConfig struct {
	Reactions []string `yaml:"reactions,omitempty"`
	Stickers  []string `yaml:"stickers,omitempty"` // empty accepts any keyword
}

// StoreConfig selects where failover and thread state live.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`   // defaults to <home>/data/tagstream.db
}

// GatewayConfig controls the HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
}

// GatewayAuth configures bearer token authentication. An empty token
// disables auth on loopback binds only.
type GatewayAuth struct {
	Token string `yaml:"token,omitempty"`
}

// ChannelsConfig groups the chat channel settings.
type ChannelsConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig defines IRC channel settings.
type IRCConfig struct {
	Server       string   `yaml:"server"`
	Port         int      `yaml:"port,omitempty"`
	Nick         string   `yaml:"nick"`
	Password     string   `yaml:"password,omitempty"`
	Channels     []string `yaml:"channels"`
	UseTLS       bool     `yaml:"useTLS,omitempty"`
	SASL         bool     `yaml:"sasl,omitempty"`
	Owner        string   `yaml:"owner,omitempty"`        // only accept messages from this nick when set
	HistoryLimit int      `yaml:"historyLimit,omitempty"` // messages kept per conversation
	Scope        string   `yaml:"scope,omitempty"`        // "per-sender" | "global"
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// HooksConfig selects which lifecycle events are written to the log.
type HooksConfig struct {
	Log []string `yaml:"log,omitempty"`
}
