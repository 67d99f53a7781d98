package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pay-tools/tx-relay/pkg/discord"
	"github.com/pay-tools/tx-relay/pkg/models/api"
	"github.com/pay-tools/tx-relay/pkg/server"
	"github.com/pay-tools/tx-relay/pkg/services/channel"
	"github.com/pay-tools/tx-relay/pkg/services/config"
	"github.com/pay-tools/tx-relay/pkg/services/dashboard"
	"github.com/pay-tools/tx-relay/pkg/services/report"
	"github.com/pay-tools/tx-relay/pkg/services/scheduler"
	"github.com/pay-tools/tx-relay/pkg/store/bankapi"
)

var cfgPath string

func main() {
	var rootCmd = &cobra.Command{
		Use:   "tx-relay",
		Short: "Relay bank transfer reports to a Discord channel",
		RunE:  runBot,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "",
		"Path to an optional YAML config file (environment variables win)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("No .env file loaded: %v\n", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	adapter, err := discord.NewAdapter(cfg.DiscordToken, cfg.DiscordChannelID, logger)
	if err != nil {
		return err
	}

	banks := make([]bankapi.Bank, 0, len(cfg.Banks))
	for _, b := range cfg.Banks {
		banks = append(banks, bankapi.Bank{Code: b.Code, Name: b.Name})
	}

	client := bankapi.NewClient(bankapi.Settings{
		BaseURL:       cfg.UpstreamBaseURL,
		Banks:         banks,
		Timeout:       cfg.UpstreamTimeout,
		RetryMax:      cfg.RetryMax,
		MaxConcurrent: cfg.MaxConcurrent,
	})

	cache := report.NewCache(cfg.CacheTTL, cfg.CacheSweep)
	aggregator := report.NewAggregator(client, cache, report.Settings{
		MaxSpanDays:     cfg.MaxSpanDays,
		DegradedLatency: cfg.DegradedLatency,
	})

	channelMgr := channel.NewManager(adapter, channel.Settings{
		ChannelID: cfg.DiscordChannelID,
		MaxAge:    cfg.CleanupMaxAge,
		MaxCount:  cfg.CleanupMaxCount,
	})

	dash := dashboard.NewManager(aggregator, channelMgr, dashboard.Settings{
		AllowedUserIDs: cfg.AllowedUserIDs,
		IdleTimeout:    cfg.SessionIdle,
		Location:       cfg.Location(),
	})
	adapter.Bind(dash, channelMgr)

	hour, minute, _ := config.ParseFireTime(cfg.DailyFire)
	sched := scheduler.New(aggregator, channelMgr, scheduler.Settings{
		Hour:     hour,
		Minute:   minute,
		Location: cfg.Location(),
	}, logger)

	if err := adapter.Open(); err != nil {
		return err
	}
	defer func() { _ = adapter.Close() }()

	go dash.Run(ctx)

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	var web *server.WebAPI
	if cfg.OpsListenAddr != "" {
		web = server.NewWebAPI(logger, server.Config{
			Addr: cfg.OpsListenAddr,
			Source: &statusSource{
				scheduler: sched,
				cache:     cache,
				channel:   channelMgr,
			},
		})
		go func() {
			if err := web.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("ops server stopped")
			}
		}()
	}

	if err := channelMgr.RefreshPanel(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not post initial dashboard panel")
	}

	logger.Info().
		Str("channel", cfg.DiscordChannelID).
		Str("daily_fire", cfg.DailyFire).
		Str("tz", cfg.Timezone).
		Msg("relay started")

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	if web != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := web.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("ops server shutdown failed")
		}
	}
	return nil
}

type statusSource struct {
	scheduler *scheduler.Scheduler
	cache     report.Cache
	channel   channel.Manager
}

func (s *statusSource) Status() api.Status {
	status := api.Status{
		CacheEntries: s.cache.Len(),
		LedgerSize:   s.channel.Size(),
	}
	if rec, ok := s.scheduler.LastRun(); ok {
		at := rec.At
		status.LastRunAt = &at
		status.LastRunOK = rec.OK
		status.LastRunError = rec.Error
	}
	return status
}
