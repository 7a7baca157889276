package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/levenlabs/go-lflag"

	"github.com/smartapp-tw/smartapp/pkg/log"
	"github.com/smartapp-tw/smartapp/pkg/smartapp"
)

func main() {
	// credentials may live in a local .env file
	_ = godotenv.Load()

	client := smartapp.Configured()
	interval := lflag.Duration("refresh-interval", 3*time.Minute, "How often to poll the vendor cloud")

	// parse flags
	lflag.Configure()

	if err := log.ConfigureFromLLog(); err != nil {
		panic(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := client.Login(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "login failed", slog.Any("error", err))
		os.Exit(1)
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		refresh(ctx, client)

		select {
		case <-ctx.Done():
			log.Ctx(ctx).InfoContext(ctx, "shutting down")
			return
		case <-ticker.C:
		}
	}
}

func refresh(ctx context.Context, client *smartapp.Client) {
	devices, err := client.GetDevicesWithInfo(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "refresh failed", slog.Any("error", err))
		return
	}

	for _, d := range devices {
		attrs := []any{
			slog.String("device", d.DisplayName()),
			slog.String("type", d.DeviceType.String()),
			slog.Int("statusCodes", len(d.Status)),
		}
		if d.EnergyKWH != nil {
			attrs = append(attrs, slog.Float64("energyKWH", *d.EnergyKWH))
		}
		if d.CO2KG != nil {
			attrs = append(attrs, slog.Float64("co2KG", *d.CO2KG))
		}
		if d.RefOpenDoor != nil {
			attrs = append(attrs, slog.Int("doorOpenings", *d.RefOpenDoor))
		}
		log.Ctx(ctx).InfoContext(ctx, "device status", attrs...)
	}
}
