package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "Path to a config file (json, yaml or toml)")
	addr := flag.String("addr", "", "HTTP listen address, overrides the config")
	dev := flag.Bool("dev", false, "Development mode: console logs and short timers")
	issue := flag.String("issue-token", "", "Print an identity token for external id:name and exit")
	flag.Parse()

	if *dev {
		os.Setenv("ARENA_DEV", "true")
	}
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	SetupLogging(cfg.LogLevel, cfg.DevMode)

	var db *DB
	if cfg.DBPath != "" {
		db, err = OpenDB(cfg.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("opening database")
		}
		defer db.Close()
	}
	verifier := NewTokenVerifier(cfg.JWTSecret, db)

	if *issue != "" {
		token, err := issueToken(verifier, *issue)
		if err != nil {
			log.Fatal().Err(err).Msg("issuing token")
		}
		fmt.Println(token)
		return
	}

	var source ArenaSource = StaticArenaSource(DefaultArenas())
	if cfg.ArenasFile != "" {
		source = FileArenaSource{Path: cfg.ArenasFile}
	}
	arenas, err := source.LoadArenas()
	if err != nil {
		log.Fatal().Err(err).Msg("loading arenas")
	}

	world := NewWorld(cfg, arenas, time.Now(), uint64(time.Now().UnixNano()))
	game := NewGame(world, verifier)

	var sink *StatsSink
	if db != nil {
		sink = NewStatsSink(db)
		sink.Attach(world.Bus)
	}

	ctx, cancel := context.WithCancel(context.Background())
	simDone := make(chan struct{})
	go func() {
		game.Run(ctx)
		close(simDone)
	}()

	hub := NewHub(game)
	server := &http.Server{Addr: cfg.Addr, Handler: SetupRoutes(hub, game, db)}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Int("arenas", len(arenas)).
			Bool("dev", cfg.DevMode).
			Bool("persistence", db != nil).
			Msg("server starting")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ListenAndServe")
		}
	}()

	<-stop
	log.Info().Msg("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	hub.CloseAll()
	cancel()
	<-simDone
	if sink != nil {
		sink.Stop()
	}
}
