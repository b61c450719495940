package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

func main() {
	envFile := flag.String("env", ".env", "Optional .env file with VOLCANO_* settings")
	addr := flag.String("addr", "", "HTTP listen address (default :8080)")
	clientDir := flag.String("client", "", "Path to client directory (default: ../client)")
	dbPath := flag.String("db", "", "SQLite database path (default volcano.db, empty disables persistence)")
	flag.Parse()

	cfg, err := LoadConfig(*envFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	// Flags win over env
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "client":
			cfg.ClientDir = *clientDir
		case "db":
			cfg.DBPath = *dbPath
		}
	})

	if cfg.ClientDir == "" {
		exe, _ := os.Executable()
		cfg.ClientDir = filepath.Join(filepath.Dir(exe), "..", "client")
		// Fallback for development
		if _, err := os.Stat(cfg.ClientDir); os.IsNotExist(err) {
			cfg.ClientDir = "../client"
		}
	}

	var db *DB
	if cfg.DBPath != "" {
		db, err = OpenDB(cfg.DBPath)
		if err != nil {
			log.Fatalf("open db %s: %v", cfg.DBPath, err)
		}
		defer db.Close()
	}

	loop := NewLoop()
	game := NewGame(cfg, loop)

	var analytics *Analytics
	if db != nil {
		analytics = NewAnalytics(db)
		defer analytics.Stop()
		game.SetStore(db)
		game.SetEvents(analytics)

		top, err := db.TopScores(cfg.LeaderboardSize)
		if err != nil {
			log.Printf("load all-time leaders: %v", err)
		}
		game.SeedLeaderboard(top)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loopDone := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(loopDone)
	}()
	loop.Post(game.Start)

	hub := NewHub(loop, game, db, analytics)
	router := SetupRoutes(hub, cfg.ClientDir)

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: cfg.Addr, Handler: router}

	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		log.Printf("Serving client files from %s", cfg.ClientDir)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
	loop.Call(game.Stop)
	cancel()
	<-loopDone
}
