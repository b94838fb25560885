// Proxy — CLI entry point.
//
// This tool runs a transparent observing TCP relay: every client connection
// is paired with a backend connection, bytes are forwarded verbatim in both
// directions, and inbound traffic is decoded for inspection on the way
// through (console, plus an optional WebSocket feed).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/beats-dh/proxy/internal/app"
	"github.com/beats-dh/proxy/internal/config"
	"github.com/beats-dh/proxy/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C or SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cliApp := cli.NewApp()
	cliApp.Name = "proxy"
	cliApp.Usage = "A transparent observing TCP relay."
	cliApp.Version = version
	cliApp.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a TOML config file",
		},
		&cli.StringFlag{
			Name:    "listen",
			Aliases: []string{"l"},
			Usage:   "address to accept client connections on",
		},
		&cli.StringFlag{
			Name:    "target",
			Aliases: []string{"t"},
			Usage:   "backend address to relay to",
		},
		&cli.StringFlag{
			Name:  "feed",
			Usage: "address to serve the WebSocket inspection feed on",
		},
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"d"},
			Usage:   "enable debug logging",
		},
	}
	cliApp.Action = func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		pterm.Info.Println(fmt.Sprintf("proxy — v%s", version))
		pterm.Println()

		return app.Run(ctx, cfg)
	}

	if err := cliApp.Run(os.Args); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// loadConfig merges the three configuration layers: built-in defaults,
// then the config file, then CLI flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if file := c.String("config"); file != "" {
		loaded, err := config.Initialize(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
		cfg = loaded
	}
	if c.IsSet("listen") {
		cfg.Proxy.Listen = c.String("listen")
	}
	if c.IsSet("target") {
		cfg.Proxy.Target = c.String("target")
	}
	if c.IsSet("feed") {
		cfg.Feed.Listen = c.String("feed")
	}
	if c.Bool("debug") {
		cfg.Log.Debug = true
	}
	return cfg, nil
}
