// The relay server pairs one browser-role and one connector-role
// websocket per session and forwards terminal traffic between them.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/coldshalamov/terminal-server/internal/config"
	"github.com/coldshalamov/terminal-server/internal/logging"
	"github.com/coldshalamov/terminal-server/internal/registry"
	"github.com/coldshalamov/terminal-server/internal/relay"
	"github.com/coldshalamov/terminal-server/internal/token"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Init(settings.LogPath)

	reg := registry.New(settings.BufferSize)
	issuer := token.NewIssuer([]byte(settings.JWTSecret), settings.TokenTTL)
	server := relay.NewServer(reg, issuer, settings)

	// Idle-eviction sweep.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(settings.SweepSpec, func() {
		if n := reg.EvictIdle(settings.SessionMaxIdle); n > 0 {
			log.Printf("[sweep] evicted %d idle sessions (%d remain)", n, reg.Count())
		}
	}); err != nil {
		log.Fatalf("sweep spec %q: %v", settings.SweepSpec, err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:    settings.ListenAddr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("relay listening on %s (env %s)", settings.ListenAddr, settings.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
