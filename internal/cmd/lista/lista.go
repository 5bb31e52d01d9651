// Package lista parses list service flags and composes the service
// entrypoint.
package lista

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/romano/lista/internal/platform/cmd"
	"github.com/romano/lista/internal/platform/metrics"
	"github.com/romano/lista/internal/server"
)

// Config holds list service command configuration.
type Config struct {
	HTTPAddr         string        `env:"LISTA_HTTP_ADDR"         envDefault:":8080"`
	Users            string        `env:"LISTA_USERS"`
	HandshakeTimeout time.Duration `env:"LISTA_HANDSHAKE_TIMEOUT" envDefault:"30s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.Users, "users", cfg.Users, "user provisioning as token:id:name pairs separated by commas")
	fs.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "websocket auth handshake deadline")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the list service and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLista, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:         cfg.HTTPAddr,
			Users:            cfg.Users,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}, metrics.New()); err != nil {
			return fmt.Errorf("serve lista: %w", err)
		}
		return nil
	})
}
