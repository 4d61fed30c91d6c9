package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-predictor/internal/logger"
	"crypto-predictor/internal/simlog"

	"github.com/joho/godotenv"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	_ = godotenv.Load()
	must(logger.Init())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap(ctx)
	must(err)

	app.server.Start()
	app.market.StartStream(ctx)
	go app.sched.Run(ctx)

	logger.Info(ctx, "Prediction server started", "pair", app.cfg.Pair, "port", app.cfg.HTTP.Port)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	logger.Info(ctx, "Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := app.server.Stop(shutdownCtx); err != nil {
		logger.ErrorWithErr(shutdownCtx, "HTTP shutdown failed", err)
	}
	if err := app.store.SaveNow(); err != nil {
		logger.ErrorWithErr(shutdownCtx, "Final state save failed", err)
	}
	if p, err := simlog.SummarizeToday(); err == nil && p != "" {
		logger.Info(shutdownCtx, "Daily report written", "file", p)
	}
	_ = logger.Shutdown(shutdownCtx)
}
