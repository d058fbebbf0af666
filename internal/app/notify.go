package app

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Notifier shows a message to the desktop user.
type Notifier interface {
	Notify(title, body string) error
}

// DesktopNotifier uses notify-send when it is installed.
type DesktopNotifier struct{}

func (DesktopNotifier) Notify(title, body string) error {
	bin, err := exec.LookPath("notify-send")
	if err != nil {
		return fmt.Errorf("notify-send not available: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if out, err := exec.CommandContext(ctx, bin, "--urgency=critical", "--app-name=kage", title, body).CombinedOutput(); err != nil {
		return fmt.Errorf("notify-send: %w: %s", err, out)
	}
	return nil
}
