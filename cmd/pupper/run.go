package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-pupper/internal/config"
	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/internal/observability"
	"github.com/teslashibe/go-pupper/pkg/assistant"
	"github.com/teslashibe/go-pupper/pkg/hub"
	"github.com/teslashibe/go-pupper/pkg/inference"
	"github.com/teslashibe/go-pupper/pkg/puppy"
	"github.com/teslashibe/go-pupper/pkg/voice"
	"github.com/teslashibe/go-pupper/pkg/web"
)

func newRunCmd(configFile *string) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the command loop and HTTP API",
		Long: `Run the assistant.

Each line on stdin is one utterance, as produced by a speech-to-text
process. After the wake phrase the next line is sent to the LLM, which
answers directly or calls a tool. The HTTP API accepts commands too.

Examples:
  whisper-stream | pupper run --bridge-host 10.0.0.2
  pupper run --no-wake --llm-model llama3.1:8b
  pupper run --servers servers.yaml --http-addr :8090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, *configFile)
			if err != nil {
				return err
			}
			noWake, _ := cmd.Flags().GetBool("no-wake")
			return runAssistant(cmd.Context(), cfg, noWake)
		},
	}

	config.BindCommonFlags(cmd, v)
	config.BindBridgeFlags(cmd, v)
	config.BindAssistantFlags(cmd, v)
	return cmd
}

func runAssistant(ctx context.Context, cfg *config.Config, noWake bool) error {
	logger := log.Component("pupper")
	metrics := observability.NewMetrics()

	bridge := newBridge(cfg, metrics)
	pup := newPuppy(cfg)

	providers, err := newProviders(ctx, cfg, localTools(bridge, pup))
	if err != nil {
		return err
	}
	dispatcher := newDispatcher(cfg, providers, metrics)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Warn("closing tool providers", "error", err)
		}
	}()

	llm, err := newLLM(cfg)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	defer llm.Close()
	if err := llm.Health(ctx); err != nil {
		logger.Warn("llm not reachable, commands will fail until it is", "url", cfg.LLM.BaseURL, "model", cfg.LLM.Model, "error", err)
	} else {
		logger.Info("llm connected", "url", cfg.LLM.BaseURL, "model", cfg.LLM.Model)
	}

	// A nil *puppy.Client must not become a non-nil interface.
	var actor puppy.Actor
	if pup != nil {
		actor = pup
	}

	events := hub.New("events", log.Component("hub"))
	go events.Run(ctx)

	session := assistant.New(assistant.Config{
		LLM:     inference.AsCompleter(llm),
		Tools:   dispatcher,
		Actions: actor,
		OnEvent: web.Publish(events, logger),
		Logger:  log.Component("assistant"),
		Metrics: metrics,
	})
	if err := session.Setup(ctx); err != nil {
		return err
	}

	if cfg.HTTP.Addr != "" {
		srv := web.NewServer(web.Config{
			Addr:      cfg.HTTP.Addr,
			Assistant: session,
			Tools:     dispatcher,
			Events:    events,
			Metrics:   metrics,
			Logger:    log.Component("web"),
		})
		go func() {
			if err := srv.Listen(); err != nil {
				logger.Error("http api stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", "error", err)
			}
		}()
	}

	if cfg.Voice.Enabled {
		loop := voice.NewLoop(voice.Config{
			Source:        voice.NewLineSource(os.Stdin),
			Commands:      session,
			Actions:       actor,
			WakePhrase:    cfg.Voice.WakePhrase,
			WakeThreshold: cfg.Voice.WakeThreshold,
			SkipWake:      noWake,
			Cooldown:      cfg.Voice.Cooldown,
			OnReply: func(_, reply string) {
				fmt.Println(reply)
			},
			Logger: log.Component("voice"),
		})
		if err := loop.Run(ctx); err != nil {
			return err
		}
		if cfg.HTTP.Addr == "" {
			return nil
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
