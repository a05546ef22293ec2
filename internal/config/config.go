// Package config provides configuration loading for go-pupper commands.
//
// Values are resolved in viper order: flags, PUPPER_* environment
// variables, an optional config file, then the defaults below.
package config

import "time"

// Config is the full runtime configuration.
type Config struct {
	Bridge        BridgeConfig        `mapstructure:"bridge"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Puppy         PuppyConfig         `mapstructure:"puppy"`
	Tools         ToolsConfig         `mapstructure:"tools"`
	Voice         VoiceConfig         `mapstructure:"voice"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Observability ObservabilityConfig `mapstructure:"observability"`

	// ServersFile lists external tool server processes (YAML or JSON).
	ServersFile string `mapstructure:"servers_file"`
}

// BridgeConfig configures the rosbridge connection.
type BridgeConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Grace        time.Duration `mapstructure:"grace"`
	Backlog      int           `mapstructure:"backlog"`
	ImagePath    string        `mapstructure:"image_path"`
}

// LLMEndpoint identifies one chat-completion backend.
type LLMEndpoint struct {
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	APIKey         string `mapstructure:"api_key"`
	ChatEndpoint   string `mapstructure:"chat_endpoint"`
	ModelsEndpoint string `mapstructure:"models_endpoint"`
}

// LLMConfig configures the primary LLM and optional fallbacks.
type LLMConfig struct {
	LLMEndpoint `mapstructure:",squash"`

	Timeout   time.Duration `mapstructure:"timeout"`
	Fallbacks []LLMEndpoint `mapstructure:"fallbacks"`
}

// PuppyConfig configures the robot action API.
type PuppyConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ToolsConfig configures tool dispatch.
type ToolsConfig struct {
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	InProcess  bool          `mapstructure:"in_process"`
}

// VoiceConfig configures wake-phrase gating.
type VoiceConfig struct {
	WakePhrase    string        `mapstructure:"wake_phrase"`
	WakeThreshold float64       `mapstructure:"wake_threshold"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	Enabled       bool          `mapstructure:"enabled"`
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Defaults holds the default value for every key.
var Defaults = Config{
	Bridge: BridgeConfig{
		Host:         "127.0.0.1",
		Port:         9090,
		Timeout:      2 * time.Second,
		PollInterval: 500 * time.Millisecond,
		Grace:        time.Second,
		Backlog:      64,
		ImagePath:    "./camera/received_image.png",
	},
	LLM: LLMConfig{
		LLMEndpoint: LLMEndpoint{
			BaseURL:        "http://localhost:3000",
			Model:          "llama3.1:8b",
			ChatEndpoint:   "/api/chat/completions",
			ModelsEndpoint: "/api/models",
		},
		Timeout: 30 * time.Second,
	},
	Puppy: PuppyConfig{
		APIURL:  "http://localhost:8080",
		Timeout: 10 * time.Second,
	},
	Tools: ToolsConfig{
		Retries:    2,
		RetryDelay: time.Second,
		InProcess:  true,
	},
	Voice: VoiceConfig{
		WakePhrase:    "hello puppy",
		WakeThreshold: 0.8,
		Cooldown:      2 * time.Second,
		Enabled:       true,
	},
	HTTP: HTTPConfig{
		Addr: ":8090",
	},
	Observability: ObservabilityConfig{
		LogLevel:  "info",
		LogFormat: "text",
	},
}
