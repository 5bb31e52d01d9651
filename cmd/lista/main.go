// Package main starts the shared shopping list service and handles
// termination.
//
// The process is a single source of truth for one household list: REST
// for mutations, WebSocket for real-time snapshot fan-out.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	listacmd "github.com/romano/lista/internal/cmd/lista"
)

func main() {
	cfg, err := listacmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[LISTA] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := listacmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
