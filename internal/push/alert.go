package push

import (
	"context"
	"log/slog"
	"os/exec"
	"time"

	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/model"
)

// CommandAlerter runs a host command for each relayed notification, with the
// title and body appended as arguments. Typical commands: a sound player or
// notify-send. A zero value with no command is a silent no-op.
type CommandAlerter struct {
	command string
	args    []string
	timeout time.Duration
	logger  *slog.Logger
}

func NewCommandAlerter(command string, args []string, logger *slog.Logger) *CommandAlerter {
	return &CommandAlerter{
		command: command,
		args:    args,
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

// Alert runs the command once. Failures are logged and swallowed: an alert
// must never interfere with delivery.
func (a *CommandAlerter) Alert(n model.Notification) {
	if a.command == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	args := append(append([]string{}, a.args...), n.Title, n.Body)
	cmd := exec.CommandContext(ctx, a.command, args...)
	if err := cmd.Run(); err != nil {
		a.logger.Warn("alert command failed", "command", a.command, "error", err)
	}
}
