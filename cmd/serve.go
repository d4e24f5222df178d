package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pterm/pterm"

	"github.com/luca-patrignani/mental-poker-sync/authority"
	"github.com/luca-patrignani/mental-poker-sync/discovery"
	"github.com/luca-patrignani/mental-poker-sync/domain/poker"
	"github.com/luca-patrignani/mental-poker-sync/network"
)

type serveOptions struct {
	addr      string
	name      string
	players   []string
	chips     uint
	tls       bool
	certOut   string
	advertise bool
	tick      time.Duration
}

func parseServe(args []string) (serveOptions, error) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	o := serveOptions{}
	var players string
	fs.StringVar(&o.addr, "addr", "localhost:8080", "address to listen on")
	fs.StringVar(&o.name, "name", "table", "table name advertised to players")
	fs.StringVar(&players, "players", "", "comma separated player names, in seat order")
	fs.UintVar(&o.chips, "chips", 1000, "starting chips of every player")
	fs.BoolVar(&o.tls, "tls", false, "serve https with a self signed certificate")
	fs.StringVar(&o.certOut, "cert-out", "table.pem", "where to write the certificate for players when -tls is set")
	fs.BoolVar(&o.advertise, "advertise", true, "advertise the table on the local discovery ports")
	fs.DurationVar(&o.tick, "tick", 200*time.Millisecond, "how often the dealer checks the table")
	if err := fs.Parse(args); err != nil {
		return serveOptions{}, err
	}
	for _, p := range strings.Split(players, ",") {
		if p = strings.TrimSpace(p); p != "" {
			o.players = append(o.players, p)
		}
	}
	if len(o.players) < 2 {
		return serveOptions{}, fmt.Errorf("at least 2 players are required, got %d", len(o.players))
	}
	if o.tick <= 0 {
		return serveOptions{}, errors.New("tick must be positive")
	}
	return o, nil
}

// newTable seats players and returns the authority holding the table
// together with its dealer.
func newTable(players []string, chips uint, r *rand.Rand, logger *slog.Logger) (*authority.Server, *dealer) {
	session := poker.NewSession(players, chips)
	srv := authority.New(
		authority.WithState(0, session.Snapshot()),
		authority.WithLogger(logger),
	)
	return srv, newDealer(srv, len(players), r, logger)
}

// tableHandler serves the authority routes and the hole cards of each seat.
func tableHandler(srv *authority.Server, d *dealer) http.Handler {
	r := chi.NewRouter()
	r.Get("/hand/{seat}", d.serveHand)
	r.Mount("/", srv)
	return r
}

func serve(ctx context.Context, args []string, logger *slog.Logger) error {
	o, err := parseServe(args)
	if err != nil {
		return err
	}

	l, err := net.Listen("tcp", o.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", o.addr, err)
	}
	scheme := "http"
	if o.tls {
		cert, pem, err := network.GenerateSelfSignedCert(l.Addr().String())
		if err != nil {
			l.Close()
			return err
		}
		if err := os.WriteFile(o.certOut, pem, 0o644); err != nil {
			l.Close()
			return fmt.Errorf("writing certificate: %w", err)
		}
		pterm.Info.Printfln("Certificate written to %s", o.certOut)
		l = tls.NewListener(l, network.ServerTLSConfig(cert, nil))
		scheme = "https"
	}
	url := scheme + "://" + l.Addr().String()

	srv, d := newTable(o.players, o.chips, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), logger)
	server := &http.Server{Handler: tableHandler(srv, d)}
	go func() {
		if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("table server stopped", "error", err)
		}
	}()
	pterm.Success.Printfln("Table %s open on %s", o.name, url)

	if o.advertise {
		b, err := discovery.Advertise(discovery.Entry{Name: o.name, URL: url}, discovery.WithLogger(logger))
		if err != nil {
			logger.Warn("table not advertised", "error", err)
		} else {
			defer b.Close()
			pterm.Info.Printfln("Advertised on discovery port %d", b.Port)
		}
	}

	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return errors.Join(ctx.Err(), server.Shutdown(shutdown))
		case <-ticker.C:
			if err := d.step(); err != nil {
				logger.Error("dealer", "error", err)
			}
		}
	}
}
