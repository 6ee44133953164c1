package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	"github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

// embeddedConfig holds the default application.yaml.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// main is the entry point of the provisioner CLI.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first SIGINT/SIGTERM cancels the running batch; its pending items end as skipped.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Stopping the running batch...", sig)
		cancel()
	}()

	if err := newRootCommand(embeddedConfig).ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		cancel()
		os.Exit(1)
	}
}
