package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"blogtoggle/internal/components/telemetry"
	"blogtoggle/internal/site"
	"blogtoggle/internal/toggle"
)

// press logs in, opens path and presses the handler's button once, the label
// the button ends up with is written to out.
func press(ctx context.Context, out io.Writer, cfg Config, path string, h toggle.Handler) error {
	tel := telemetry.SlogAPI{}

	client, err := site.NewClient(site.Options{BaseUrl: cfg.BaseUrl}, tel)
	if err != nil {
		return err
	}
	err = client.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		return err
	}

	button, err := toggle.Open(ctx, client, client, path, h, tel)
	if err != nil {
		return err
	}
	slog.Debug("bound button", "handler", h.Name, "target", button.Target(), "label", button.Label())

	outcome, err := button.Press(ctx)
	if err != nil {
		return err
	}
	slog.Info("pressed", "handler", h.Name, "status", outcome.Status, "state", outcome.State.String())

	_, err = fmt.Fprintln(out, outcome.Label)
	return err
}
