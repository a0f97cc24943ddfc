// Command fenrird runs the order-book server for a single symbol.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"fenrir/internal/clock"
	"fenrir/internal/common"
	"fenrir/internal/config"
	"fenrir/internal/engine"
	"fenrir/internal/idgen"
	"fenrir/internal/metrics"
	fenrirNet "fenrir/internal/net"
)

// deferredSink forwards trades to the server once it exists; engine.Book
// and net.Server each need a reference to the other at construction time.
type deferredSink struct {
	srv *fenrirNet.Server
}

func (d *deferredSink) OnTrade(t common.TradeEvent) {
	if d.srv != nil {
		d.srv.OnTrade(t)
	}
}

func main() {
	configPath := flag.String("config", "", "path to a JSON config file (optional)")
	address := flag.String("address", "", "override the listen address")
	port := flag.Int("port", 0, "override the listen port")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed loading config")
		}
		cfg = loaded
	}
	if *address != "" {
		cfg.Address = *address
	}
	if *port != 0 {
		cfg.Port = *port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	clk := clock.NewSystem()
	ids := idgen.NewUUIDAllocator()
	stats := metrics.New()

	sink := &deferredSink{}
	book := engine.NewBook(clk, ids, sink, engine.WithStats(stats), engine.WithLogger(log))
	srv := fenrirNet.New(cfg.Address, cfg.Port, book, clk, log, cfg.WorkerPoolSize)
	sink.srv = srv

	log.Info().Str("symbol", cfg.Symbol).Int("port", cfg.Port).Msg("starting fenrird")
	go srv.Run(ctx)
	<-ctx.Done()
}
