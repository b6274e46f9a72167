// main.go
//
// Entry point for wolfsheep.
//
//	wolfsheep                       local hot-seat game in the terminal
//	wolfsheep --server [--addr A]   run the session server
//	wolfsheep --connect URL         play a remote session; URL is either a
//	                                session websocket (ws://host/sessions/ID/ws)
//	                                or a server base URL (http://host:port),
//	                                in which case a new session is created
//
// Configuration comes from the environment and .env (see internal/config);
// flags override the listen address and the rules preset.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/robalobadob/wolfsheep/internal/board"
	"github.com/robalobadob/wolfsheep/internal/config"
	"github.com/robalobadob/wolfsheep/internal/game"
	"github.com/robalobadob/wolfsheep/internal/httpserver"
	"github.com/robalobadob/wolfsheep/internal/session"
)

func main() {
	server := flag.Bool("server", false, "run the session server")
	addr := flag.String("addr", "", "listen address (overrides HUNT_ADDR)")
	connect := flag.String("connect", "", "session websocket URL or server base URL")
	role := flag.String("role", "wolves", "seat to ask for: wolves|sheep|spectator")
	name := flag.String("name", "", "display name")
	password := flag.String("password", "", "session password")
	rules := flag.String("rules", "", "rules preset: standard|classic (overrides HUNT_RULES)")
	chain := flag.String("chain", "", "chain policy: voluntary|forced (overrides HUNT_CHAIN)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [--server [--addr :5175] | --connect URL --role wolves|sheep|spectator --name N]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		config.Exitf("config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *rules != "" {
		cfg.Rules = *rules
	}
	if *chain != "" {
		cfg.Chain = *chain
	}
	cfg.SetupLogging()

	b, err := board.Load(cfg.BoardFile)
	if err != nil {
		config.Exitf("board: %v", err)
	}
	r, err := defaultRules(cfg)
	if err != nil {
		config.Exitf("rules: %v", err)
	}

	switch {
	case *server:
		err = runServer(cfg, b, r)
	case *connect != "":
		seat, perr := game.ParseSeat(*role)
		if perr != nil {
			config.Exitf("role: %v", perr)
		}
		err = runRemote(b, *connect, remoteOptions{
			Seat:     seat,
			Name:     *name,
			Password: *password,
			Create:   session.CreateRequest{Rules: cfg.Rules, Chain: cfg.Chain, Password: *password},
		})
	default:
		err = runLocal(b, r, os.Stdin, os.Stdout)
	}
	if err != nil {
		config.Exitf("%v", err)
	}
}

// defaultRules resolves HUNT_RULES and HUNT_CHAIN.
func defaultRules(cfg config.Config) (game.Rules, error) {
	r, err := game.RulesByName(cfg.Rules)
	if err != nil {
		return game.Rules{}, err
	}
	if err := r.Chain.UnmarshalText([]byte(cfg.Chain)); err != nil {
		return game.Rules{}, err
	}
	return r, nil
}

func runServer(cfg config.Config, b *board.Topology, r game.Rules) error {
	st, closeStore, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mgr := session.NewManager(b, r, session.Options{
		TokenSecret:    cfg.Secret(),
		TokenTTL:       cfg.TokenTTL,
		ForfeitTimeout: cfg.ForfeitTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxSessions:    cfg.MaxSessions,
		Store:          st,
		Metrics:        session.NewMetrics(reg),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := mgr.Restore(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("restore sessions")
	} else if n > 0 {
		log.Info().Int("sessions", n).Msg("restored sessions")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.New(mgr, reg, cfg.ClientOrigin).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("board", b.Name()).Str("rules", r.Name).Str("chain", r.Chain.String()).Msg("starting session server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		mgr.Close()
		return err
	})
	return g.Wait()
}
