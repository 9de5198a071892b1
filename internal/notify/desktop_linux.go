//go:build linux

package notify

import (
	"context"
	"fmt"
	"os/exec"
)

type linuxPlatform struct{}

func newPlatform() platform {
	return linuxPlatform{}
}

func (linuxPlatform) supported() bool {
	_, err := exec.LookPath("notify-send")
	return err == nil
}

func (linuxPlatform) send(ctx context.Context, title, message string) error {
	cmd := exec.CommandContext(ctx, "notify-send", "--app-name=fitremind", "--urgency=normal", title, message)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("notify-send failed: %w", err)
	}
	return nil
}
