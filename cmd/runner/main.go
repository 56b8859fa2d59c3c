package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"spread-arb-go/config"
	"spread-arb-go/engine"
	"spread-arb-go/infrastructure/alert"
	"spread-arb-go/infrastructure/logger"
	"spread-arb-go/journal"
	"spread-arb-go/monitor"
	"spread-arb-go/news"
	"spread-arb-go/preflight"
	"spread-arb-go/risk"
	"spread-arb-go/venue"
	"spread-arb-go/venue/bybit"
	"spread-arb-go/venue/gate"
	"spread-arb-go/web"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	skipPreflight := flag.Bool("skipPreflight", false, "跳过上线自检（仅限调试）")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	lg, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Outputs:    outputsFor(cfg.Logging),
		OutputFile: cfg.Logging.OutputFile,
		Format:     cfg.Logging.Format,
	})
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer lg.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	venueA := newBybit(cfg.Venues.Bybit)
	venueB := newGate(cfg.Venues.Gate)

	loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := venueA.LoadMarkets(loadCtx); err != nil {
		log.Fatalf("加载 bybit 市场失败: %v", err)
	}
	if err := venueB.LoadMarkets(loadCtx); err != nil {
		log.Fatalf("加载 gate 市场失败: %v", err)
	}
	loadCancel()

	if !cfg.Trading.DryRun && !*skipPreflight {
		pfCtx, pfCancel := context.WithTimeout(ctx, 30*time.Second)
		err := preflight.Check(pfCtx, venueA, venueB, cfg.Trading.Symbols)
		pfCancel()
		if err != nil {
			log.Fatalf("上线自检未通过: %v", err)
		}
		lg.Info("preflight passed")
	}

	if cfg.Venues.Bybit.UseWebsocket {
		syms := make([]string, 0, len(cfg.Trading.Symbols))
		for _, s := range cfg.Trading.Symbols {
			syms = append(syms, venueA.Symbol(s))
		}
		stream := bybit.NewStream(syms, lg.Named("bybit_ws"))
		if cfg.Venues.Bybit.WSURL != "" {
			stream.Endpoint = cfg.Venues.Bybit.WSURL
		}
		venueA.Stream = stream
		go func() {
			// 断线退避重连，循环自身可继续走 REST
			for ctx.Err() == nil {
				if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
					lg.Warn("bybit stream exited", zap.Error(err))
					time.Sleep(3 * time.Second)
				}
			}
		}()
	}

	metrics := engine.NewMetrics()
	mon := monitor.New(monitor.DefaultConfig())
	alerts := alert.NewManager(time.Minute, &alert.LogChannel{Log: lg.Named("alert")})
	ledger := journal.New(cfg.Journal.Path)

	loop, err := engine.NewLoop(loopConfig(cfg), engine.Deps{
		VenueA:    venueA,
		VenueB:    venueB,
		AntiFlood: newAntiFlood(cfg),
		Limit:     newDailyLimit(cfg),
		Ledger:    ledger,
		Metrics:   metrics,
		Monitor:   mon,
		Alerts:    alerts,
		Log:       lg.Named("engine"),
	})
	if err != nil {
		log.Fatalf("初始化套利循环失败: %v", err)
	}
	loop.SetPaused(cfg.Trading.StopTrading)

	watcher, err := config.NewWatcher(*cfgPath, 2*time.Second, lg.Named("config"), func(newCfg config.AppConfig) {
		loop.UpdateConfig(loopConfig(newCfg))
		loop.SetPaused(newCfg.Trading.StopTrading)
	})
	if err != nil {
		log.Fatalf("初始化配置监听失败: %v", err)
	}
	if err := watcher.Start(ctx); err != nil {
		lg.Warn("config watcher disabled", zap.Error(err))
	}
	defer watcher.Stop()

	srv := &web.Server{Metrics: metrics, Journal: ledger, Monitor: mon, Log: lg.Named("web")}
	srv.Start(cfg.HTTP.Addr)
	defer func() {
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		_ = srv.Shutdown(shCtx)
	}()

	if cfg.News.Enabled {
		poller := news.NewPoller(news.Config{
			SourceURL: cfg.News.SourceURL,
			PollEvery: cfg.News.PollEvery,
			OrderUSD:  cfg.News.OrderUSD,
			Whitelist: cfg.News.Whitelist,
		}, venueA, ledger, metrics, lg.Named("news"))
		go poller.Run(ctx)
	}

	go func() {
		_ = loop.Run(ctx)
	}()

	lg.Info("runner started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	lg.Info("shutting down")
	cancel()
}

func loopConfig(cfg config.AppConfig) engine.Config {
	return engine.Config{
		Symbols:       cfg.Trading.Symbols,
		SpreadMinBps:  cfg.Trading.SpreadMinBps,
		TakerFeeBps:   cfg.Trading.TakerFeeBps,
		SlippageBps:   cfg.Trading.SlippageBps,
		MinNotional:   cfg.Trading.MinNotional,
		MaxOrderUSD:   cfg.Trading.MaxOrderUSD,
		DailyLimitUSD: cfg.Trading.DailyLimitUSD,
		TickInterval:  cfg.Trading.TickInterval,
		HedgeTimeout:  cfg.Trading.HedgeTimeout,
		DryRun:        cfg.Trading.DryRun,
		DemoMode:      cfg.Trading.DemoMode,
	}
}

func newBybit(vc config.VenueConfig) *bybit.Client {
	return &bybit.Client{
		BaseURL:      vc.BaseURL,
		APIKey:       vc.APIKey,
		Secret:       vc.APISecret,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		Limiter:      newLimiter(vc),
		RecvWindowMs: 5000,
	}
}

func newGate(vc config.VenueConfig) *gate.Client {
	return &gate.Client{
		BaseURL:    vc.BaseURL,
		APIKey:     vc.APIKey,
		Secret:     vc.APISecret,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Limiter:    newLimiter(vc),
	}
}

func newLimiter(vc config.VenueConfig) venue.RateLimiter {
	if vc.RestRate <= 0 {
		return venue.NopLimiter{}
	}
	burst := vc.RestBurst
	if burst <= 0 {
		burst = 1
	}
	return venue.NewTokenBucketLimiter(vc.RestRate, burst)
}

func newAntiFlood(cfg config.AppConfig) *risk.AntiFlood {
	return risk.NewAntiFlood(time.Duration(cfg.Trading.AntifloodSeconds) * time.Second)
}

func newDailyLimit(cfg config.AppConfig) *risk.DailyLimit {
	return risk.NewDailyLimit(cfg.Trading.DailyLimitUSD, cfg.Trading.DailyResetInterval)
}

func outputsFor(lc config.LoggingConfig) []string {
	if lc.OutputFile != "" {
		return []string{"stdout", "file"}
	}
	return []string{"stdout"}
}
