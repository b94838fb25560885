// Package app contains the top-level orchestration for the relay process.
package app

import (
	"context"

	"github.com/beats-dh/proxy/internal/config"
	"github.com/beats-dh/proxy/internal/inspect"
	"github.com/beats-dh/proxy/internal/relay"
	"github.com/beats-dh/proxy/internal/util"
)

// Run orchestrates the full relay lifecycle:
//  1. Apply the logging configuration
//  2. Start the inspection feed when configured
//  3. Start the periodic stats reporter
//  4. Serve the relay listener until ctx is cancelled
func Run(ctx context.Context, cfg *config.Config) error {
	// ── 1. Logging ──────────────────────────────────────────────────────
	if cfg.Log.Debug {
		util.EnableDebug()
	}

	// ── 2. Inspection sinks ─────────────────────────────────────────────
	sinks := inspect.MultiSink{inspect.NewConsoleSink()}
	if cfg.Feed.Listen != "" {
		feed := inspect.NewFeed()
		addr, err := feed.Start(cfg.Feed.Listen)
		if err != nil {
			return err
		}
		defer feed.Close()
		util.LogSuccess("inspection feed at ws://%s/feed", addr)
		sinks = append(sinks, feed)
	}

	// ── 3. Stats reporter ───────────────────────────────────────────────
	util.StartStatsReporter(ctx)

	// ── 4. Relay listener ───────────────────────────────────────────────
	return relay.ListenAndServe(ctx, cfg.Proxy.Listen, cfg.Proxy.Target, sinks)
}
