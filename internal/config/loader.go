package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (PUPPER_BRIDGE_HOST, ...).
const EnvPrefix = "PUPPER"

// envAliases keeps the variable names used by existing robot deployments.
var envAliases = map[string][]string{
	"bridge.host":   {"PUPPER_BRIDGE_HOST", "ROSBRIDGE_IP"},
	"puppy.api_url": {"PUPPER_PUPPY_API_URL", "PUPPY_API_URL"},
	"llm.api_key":   {"PUPPER_LLM_API_KEY", "OPENWEBUI_API_KEY"},
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	d := Defaults

	v.SetDefault("bridge.host", d.Bridge.Host)
	v.SetDefault("bridge.port", d.Bridge.Port)
	v.SetDefault("bridge.timeout", d.Bridge.Timeout)
	v.SetDefault("bridge.poll_interval", d.Bridge.PollInterval)
	v.SetDefault("bridge.grace", d.Bridge.Grace)
	v.SetDefault("bridge.backlog", d.Bridge.Backlog)
	v.SetDefault("bridge.image_path", d.Bridge.ImagePath)

	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.chat_endpoint", d.LLM.ChatEndpoint)
	v.SetDefault("llm.models_endpoint", d.LLM.ModelsEndpoint)
	v.SetDefault("llm.timeout", d.LLM.Timeout)

	v.SetDefault("puppy.api_url", d.Puppy.APIURL)
	v.SetDefault("puppy.timeout", d.Puppy.Timeout)

	v.SetDefault("tools.retries", d.Tools.Retries)
	v.SetDefault("tools.retry_delay", d.Tools.RetryDelay)
	v.SetDefault("tools.in_process", d.Tools.InProcess)

	v.SetDefault("voice.wake_phrase", d.Voice.WakePhrase)
	v.SetDefault("voice.wake_threshold", d.Voice.WakeThreshold)
	v.SetDefault("voice.cooldown", d.Voice.Cooldown)
	v.SetDefault("voice.enabled", d.Voice.Enabled)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("servers_file", "")

	v.SetDefault("observability.log_level", d.Observability.LogLevel)
	v.SetDefault("observability.log_format", d.Observability.LogFormat)
}

// BindCommonFlags binds flags shared by every command.
func BindCommonFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()

	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (json, text)")

	_ = v.BindPFlag("observability.log_level", f.Lookup("log-level"))
	_ = v.BindPFlag("observability.log_format", f.Lookup("log-format"))
}

// BindBridgeFlags binds rosbridge connection flags.
func BindBridgeFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()

	f.String("bridge-host", "", "rosbridge host (default 127.0.0.1)")
	f.Int("bridge-port", 0, "rosbridge port (default 9090)")
	f.Duration("bridge-timeout", 0, "default rosbridge receive timeout")
	f.String("puppy-url", "", "robot action API base URL")

	_ = v.BindPFlag("bridge.host", f.Lookup("bridge-host"))
	_ = v.BindPFlag("bridge.port", f.Lookup("bridge-port"))
	_ = v.BindPFlag("bridge.timeout", f.Lookup("bridge-timeout"))
	_ = v.BindPFlag("puppy.api_url", f.Lookup("puppy-url"))
}

// BindAssistantFlags binds flags used by the command loop.
func BindAssistantFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()

	f.String("llm-url", "", "LLM base URL")
	f.String("llm-model", "", "LLM model id")
	f.String("servers", "", "tool servers file (YAML or JSON)")
	f.String("http-addr", "", "HTTP API listen address (empty disables)")
	f.Bool("no-wake", false, "accept every line as a command without a wake phrase")

	_ = v.BindPFlag("llm.base_url", f.Lookup("llm-url"))
	_ = v.BindPFlag("llm.model", f.Lookup("llm-model"))
	_ = v.BindPFlag("servers_file", f.Lookup("servers"))
	_ = v.BindPFlag("http.addr", f.Lookup("http-addr"))
}

// Load reads config from flags, env, and file. A missing file is only an
// error when configFile was given explicitly.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("pupper")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if c.Bridge.Port <= 0 || c.Bridge.Port > 65535 {
		return fmt.Errorf("config: bridge.port %d out of range", c.Bridge.Port)
	}
	if c.Bridge.Timeout <= 0 {
		return errors.New("config: bridge.timeout must be positive")
	}
	if c.Tools.Retries < 1 {
		return errors.New("config: tools.retries must be at least 1")
	}
	if c.Voice.WakeThreshold < 0 || c.Voice.WakeThreshold > 1 {
		return fmt.Errorf("config: voice.wake_threshold %.2f not in [0,1]", c.Voice.WakeThreshold)
	}
	return nil
}
