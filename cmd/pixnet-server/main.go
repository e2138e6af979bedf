// Command pixnet-server serves PXNT pages from a content directory over
// the PIXNET wire protocol.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pixnet/pixnetd/internal/config"
	"github.com/pixnet/pixnetd/internal/pixserver"
	"github.com/pixnet/pixnetd/internal/registry"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Printf("pixnet: .env: %v", err)
	}
	cfg := config.Load()

	manifestCacheDefault := cfg.ManifestCache
	if manifestCacheDefault == "" {
		manifestCacheDefault = filepath.Join(cfg.ContentDir, "manifest.db")
	}

	host := flag.String("host", cfg.Host, "bind address")
	port := flag.Int("port", cfg.Port, "listen port")
	contentDir := flag.String("content", cfg.ContentDir, "directory of *.pxnt pages")
	maxConns := flag.Int("max-conn", cfg.MaxConns, "maximum concurrent connections")
	verbose := flag.Bool("verbose", cfg.Verbose, "dump decoded pages on load")
	manifestCache := flag.String("manifest-cache", manifestCacheDefault, "path to sqlite manifest cache (set to empty string to disable)")
	flag.Parse()

	reg, err := registry.Open(*contentDir, *manifestCache)
	if err != nil {
		log.Fatalf("pixnet: open registry: %v", err)
	}
	defer reg.Close()
	log.Printf("pixnet: loaded %d pages from %s", len(reg.Names()), *contentDir)

	srv := pixserver.New(pixserver.Config{
		MaxConns:      *maxConns,
		SessionMaxAge: cfg.SessionMaxAge,
		SweepInterval: cfg.SweepInterval,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		Verbose:       *verbose,
	}, reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx, *host, *port); err != nil {
		log.Fatalf("pixnet: %v", err)
	}
	log.Println("pixnet: shut down")
}
