package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"spread-arb-go/config"
	"spread-arb-go/preflight"
	"spread-arb-go/venue"
	"spread-arb-go/venue/bybit"
	"spread-arb-go/venue/gate"
)

// 独立的上线自检工具：不下单，只验证配置、连通性与市场元数据。
func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	timeout := flag.Duration("timeout", 30*time.Second, "整体超时")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	a := &bybit.Client{
		BaseURL:      cfg.Venues.Bybit.BaseURL,
		APIKey:       cfg.Venues.Bybit.APIKey,
		Secret:       cfg.Venues.Bybit.APISecret,
		HTTPClient:   httpClient,
		Limiter:      venue.NopLimiter{},
		RecvWindowMs: 5000,
	}
	b := &gate.Client{
		BaseURL:    cfg.Venues.Gate.BaseURL,
		APIKey:     cfg.Venues.Gate.APIKey,
		Secret:     cfg.Venues.Gate.APISecret,
		HTTPClient: httpClient,
		Limiter:    venue.NopLimiter{},
	}

	if err := preflight.Check(ctx, a, b, cfg.Trading.Symbols); err != nil {
		fmt.Fprintf(os.Stderr, "自检未通过: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("自检通过")
}
