// The connector bridges a local PTY-backed shell to the relay server
// under the connector role. It is single-purpose: any fatal condition
// (shell exit, exhausted reconnects) terminates the process.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coldshalamov/terminal-server/internal/bridge"
	"github.com/coldshalamov/terminal-server/internal/client"
	"github.com/coldshalamov/terminal-server/internal/config"
	"github.com/coldshalamov/terminal-server/internal/wire"
)

type connector struct {
	bridge *bridge.Bridge
	client *client.Client

	shutdownOnce sync.Once
	done         chan int
}

func main() {
	cfg, err := config.ParseConnectorFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "connector: %v\n", err)
		os.Exit(2)
	}

	log.Printf("connector starting (server %s, shell %s)", cfg.ServerURL, cfg.Shell)

	c := &connector{done: make(chan int, 1)}

	c.bridge = bridge.New(cfg.Shell, cfg.Env, bridge.Events{
		OnData: func(data string) {
			c.client.EmitData(data)
		},
		OnExit: func(code int) {
			log.Printf("shell exited unexpectedly (code %d)", code)
			c.client.EmitStatus(wire.StatusClosed, fmt.Sprintf("shell exited (code %d)", code))
			c.shutdown(code)
		},
	})

	c.client, err = client.New(cfg.ServerURL, cfg.Token, cfg.ReconnectInterval, cfg.MaxReconnectAttempts, client.Events{
		OnConnected: func() {
			// Spawn on first connect only; reconnects reuse the live shell.
			if !c.bridge.IsRunning() {
				if err := c.bridge.Spawn(bridge.DefaultCols, bridge.DefaultRows); err != nil {
					log.Printf("spawn failed: %v", err)
					c.shutdown(1)
					return
				}
				c.client.EmitStatus(wire.StatusReady, "shell spawned and ready")
			}
		},
		OnInput: func(data string) {
			if err := c.bridge.Write(data); err != nil {
				log.Printf("write to shell: %v", err)
			}
		},
		OnResize: func(cols, rows uint16) {
			if err := c.bridge.Resize(cols, rows); err != nil {
				log.Printf("resize: %v", err)
			}
		},
		OnClose: func() {
			log.Printf("close requested by relay")
			c.shutdown(0)
		},
		OnError: func(message string) {
			if message == client.ErrMaxReconnects {
				log.Printf("giving up: %s", message)
				c.shutdown(1)
			}
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connector: %v\n", err)
		os.Exit(2)
	}

	c.client.Connect()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
		c.shutdown(0)
	case code := <-c.done:
		os.Exit(code)
	}

	os.Exit(<-c.done)
}

// shutdown tears down in a fixed order: announce status, disconnect the
// transport, terminate the shell. Re-entrant calls are no-ops.
func (c *connector) shutdown(code int) {
	c.shutdownOnce.Do(func() {
		c.client.EmitStatus(wire.StatusClosed, "connector shutting down")
		c.client.Disconnect()
		c.bridge.Kill()
		log.Printf("shutdown complete")

		// Give the close frame a moment to flush.
		time.Sleep(100 * time.Millisecond)
		c.done <- code
	})
}
