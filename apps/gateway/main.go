package main

import (
	"flag"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chatline/pkg/config"
)

func newLogger(logFile string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if logFile != "" {
		cfg.OutputPaths = []string{logFile}
	}
	return cfg.Build()
}

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.Gateway.LogFile)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	hub := NewHub(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Redis.Addr, logger)
	go hub.Run()

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})
	http.Handle("/metrics", promhttp.Handler())

	logger.Info("gateway service starting", zap.String("addr", cfg.Gateway.Addr))
	if err := http.ListenAndServe(cfg.Gateway.Addr, nil); err != nil {
		logger.Fatal("gateway server exited", zap.Error(err))
	}
}
