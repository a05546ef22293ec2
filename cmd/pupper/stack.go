package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/teslashibe/go-pupper/internal/config"
	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/internal/observability"
	"github.com/teslashibe/go-pupper/pkg/inference"
	"github.com/teslashibe/go-pupper/pkg/puppy"
	"github.com/teslashibe/go-pupper/pkg/rosbridge"
	"github.com/teslashibe/go-pupper/pkg/rostools"
	"github.com/teslashibe/go-pupper/pkg/toolproc"
	"github.com/teslashibe/go-pupper/pkg/tools"
)

// loadConfig resolves configuration and initializes logging.
func loadConfig(v *viper.Viper, configFile string) (*config.Config, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log.Init(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	return cfg, nil
}

func newBridge(cfg *config.Config, metrics *observability.Metrics) *rosbridge.Bridge {
	return rosbridge.New(rosbridge.Config{
		Host:         cfg.Bridge.Host,
		Port:         cfg.Bridge.Port,
		Timeout:      cfg.Bridge.Timeout,
		PollInterval: cfg.Bridge.PollInterval,
		Grace:        cfg.Bridge.Grace,
		Backlog:      cfg.Bridge.Backlog,
		ImagePath:    cfg.Bridge.ImagePath,
		Logger:       log.L(),
		Metrics:      metrics,
	})
}

// newPuppy returns nil when no action API is configured.
func newPuppy(cfg *config.Config) *puppy.Client {
	if cfg.Puppy.APIURL == "" {
		return nil
	}
	return puppy.NewClient(cfg.Puppy.APIURL, cfg.Puppy.Timeout, log.Component("puppy"))
}

// localTools registers the bridge tools and, when a robot API is
// configured, the action tools.
func localTools(bridge *rosbridge.Bridge, pup *puppy.Client) *tools.Local {
	local := rostools.Tools(bridge, log.Component("rostools"))
	if pup != nil {
		local.Merge(puppy.Tools(pup))
	}
	return local
}

// newProviders builds the in-process provider (unless disabled) followed
// by every server in the roster. Started servers are closed on failure.
func newProviders(ctx context.Context, cfg *config.Config, local *tools.Local) ([]tools.Provider, error) {
	var providers []tools.Provider
	if cfg.Tools.InProcess {
		providers = append(providers, local)
	}
	if cfg.ServersFile != "" {
		specs, err := config.LoadServers(cfg.ServersFile)
		if err != nil {
			return nil, err
		}
		clients, err := toolproc.StartAll(ctx, specs, log.L())
		if err != nil {
			return nil, err
		}
		for _, c := range clients {
			providers = append(providers, c)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no tool providers: enable tools.in_process or set servers_file")
	}
	return providers, nil
}

func newDispatcher(cfg *config.Config, providers []tools.Provider, metrics *observability.Metrics) *tools.Dispatcher {
	return tools.NewDispatcher(providers,
		tools.WithRetry(cfg.Tools.Retries, cfg.Tools.RetryDelay),
		tools.WithLogger(log.L()),
		tools.WithMetrics(metrics),
	)
}

func newLLMClient(ep config.LLMEndpoint, cfg *config.Config, logger *slog.Logger) (*inference.Client, error) {
	return inference.NewClient(
		inference.WithBaseURL(ep.BaseURL),
		inference.WithAPIKey(ep.APIKey),
		inference.WithModel(ep.Model),
		inference.WithEndpoints(ep.ChatEndpoint, ep.ModelsEndpoint),
		inference.WithTimeout(cfg.LLM.Timeout),
		inference.WithLogger(logger),
	)
}

// newLLM builds the primary client and chains any fallbacks after it.
func newLLM(cfg *config.Config) (inference.Provider, error) {
	logger := log.Component("inference")
	primary, err := newLLMClient(cfg.LLM.LLMEndpoint, cfg, logger)
	if err != nil {
		return nil, err
	}
	if len(cfg.LLM.Fallbacks) == 0 {
		return primary, nil
	}

	providers := []inference.Provider{primary}
	for i, ep := range cfg.LLM.Fallbacks {
		if ep.BaseURL == "" {
			ep.BaseURL = cfg.LLM.BaseURL
		}
		c, err := newLLMClient(ep, cfg, logger)
		if err != nil {
			for _, p := range providers {
				err = multierr.Append(err, p.Close())
			}
			return nil, fmt.Errorf("llm fallback %d: %w", i, err)
		}
		providers = append(providers, c)
	}
	return inference.NewChain(logger, providers...)
}
