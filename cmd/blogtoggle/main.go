package main

import (
	"context"
	"log/slog"

	"blogtoggle/cmd/blogtoggle/commands"
	"blogtoggle/internal/components/telemetry"
	"blogtoggle/pkg/serviceutil"
)

func main() {
	ctx := serviceutil.SignalContext()

	otel, err := telemetry.SetupFromEnv(ctx, "blogtoggle")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer func() {
		err := otel.Shutdown(context.Background())
		if err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	commands.ExecuteContext(ctx)
}
