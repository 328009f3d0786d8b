package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"regwatch/internal/config"
	"regwatch/internal/digest"
	"regwatch/internal/dispatch"
	"regwatch/internal/engine"
	"regwatch/internal/logging"
	"regwatch/internal/model"
	"regwatch/internal/sender"
	"regwatch/internal/source"
	"regwatch/internal/store"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./regwatch.yaml", "path to config yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Console)

	st, err := store.NewSQLiteStore(cfg.Database.Path, logger.With(logging.F("component", "store")))
	if err != nil {
		return err
	}
	defer st.Close()

	senders := buildSenders(cfg, logger)

	dispatcher := dispatch.New(cfg.DispatchConfig(), senders, st, st,
		logger.With(logging.F("component", "dispatch")))

	src := source.NewHTTPSource(cfg.Registry.URL, cfg.Registry.FetchTimeout.Std())
	eng := engine.New(cfg.EngineConfig(), src, st, dispatcher,
		logger.With(logging.F("component", "engine")))

	aggregator := digest.NewAggregator(senders, st, st, cfg.Digest.SendTimeout.Std(),
		logger.With(logging.F("component", "digest")))
	scheduler := digest.NewScheduler(cfg.SchedulerConfig(), aggregator, st,
		logger.With(logging.F("component", "scheduler")))

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	eng.Start(ctx)
	defer eng.Stop()

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// buildSenders assembles the channel-type capability map from the
// configured integrations. Types without configuration stay unregistered;
// dispatching to them is a per-channel delivery failure, not a crash.
func buildSenders(cfg *config.Config, logger logging.Logger) sender.Registry {
	sendTimeout := cfg.Dispatch.SendTimeout.Std()
	senders := sender.Registry{
		model.ChannelWebhook: sender.NewWebhookSender(sendTimeout),
		model.ChannelSlack:   sender.NewSlackSender(sendTimeout),
		model.ChannelDiscord: sender.NewDiscordSender(sendTimeout),
		model.ChannelTeams:   sender.NewTeamsSender(sendTimeout),
	}
	if cfg.SMTP.Addr != "" {
		senders[model.ChannelEmail] = sender.NewEmailSender(cfg.SMTP)
	}
	if cfg.Telegram.Token != "" {
		tg, err := sender.NewTelegramSender(cfg.Telegram.Token)
		if err != nil {
			logger.Warn("telegram sender disabled", logging.Err(err))
		} else {
			senders[model.ChannelTelegram] = tg
		}
	}
	return senders
}
