package main

import (
	"context"

	"github.com/shiplog-app/shiplog/internal/app"
	"github.com/shiplog-app/shiplog/internal/logging"
	"github.com/shiplog-app/shiplog/internal/prometheus"
	"go.uber.org/zap"
)

func main() {
	go prometheus.Run()

	for {
		ctx, cancel := context.WithCancel(context.Background())

		shiplog, err := app.NewApp(cancel)
		if err != nil {
			logging.Logger.Fatal("failed to create shiplog app", zap.String("error", err.Error()))
		}

		err = shiplog.Run(ctx)
		if err != nil {
			panic(err)
		}

		<-ctx.Done()

		shiplog.HealthCheckerService.Check()

		cancel()
	}
}
