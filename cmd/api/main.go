package main

import (
	"context"
	"fmt"
	"os"

	"chatTracker/internal/app"
	"chatTracker/internal/config"
	"chatTracker/internal/logger"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "загрузка конфигурации: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	application := app.New(cfg)
	if err := application.Init(ctx); err != nil {
		logger.Error("Не удалось запустить приложение", err)
		_ = application.Shutdown(ctx)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "остановка с ошибкой: %v\n", err)
		os.Exit(1)
	}
}
