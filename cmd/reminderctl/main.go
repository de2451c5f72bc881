// Command reminderctl runs the reminder engine's jobs and inspection commands
// from a shell or a cron entry.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/bootstrap"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/interfaces/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.Execute(ctx, bootstrap.CLIFactories())
	stop()
	if err != nil {
		os.Exit(1)
	}
}
