package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/config"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/database"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/logging"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/server"
)

func main() {
	backupNow := flag.Bool("backup", false, "run a state backup immediately and exit")
	restore := flag.Bool("restore", false, "restore state from the latest backup and exit")
	flag.Parse()

	// Optional; absence of a .env file is not an error
	godotenv.Load()

	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	srv := server.New(cfg, db, logger)

	if *backupNow {
		if _, err := srv.BackupManager().RunNow(context.Background()); err != nil {
			log.Fatalf("backup failed: %v", err)
		}
		fmt.Println("Backup complete")
		return
	}
	if *restore {
		db.Close()
		if err := srv.BackupManager().Restore(context.Background()); err != nil {
			log.Fatalf("restore failed: %v", err)
		}
		fmt.Println("Restore complete, start the relay to use the restored state")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Start(ctx)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("shopnet-relay listening at http://%s\n", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
	srv.Stop()
}
