package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/macharian8/stocksnap/internal/config"
	"github.com/macharian8/stocksnap/internal/httpapi"
	"github.com/macharian8/stocksnap/internal/notify"
	"github.com/macharian8/stocksnap/internal/session"
	"github.com/macharian8/stocksnap/internal/store"
	"github.com/macharian8/stocksnap/internal/store/memory"
	pgstore "github.com/macharian8/stocksnap/internal/store/postgres"
)

type repository interface {
	store.CatalogStore
	store.LedgerStore
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("store: postgres")
	} else {
		repo = memory.NewSeeded(cfg.Scope)
		log.Println("store: in-memory (seeded)")
	}

	sink := notify.Sink(notify.NoopSink{})
	if cfg.RedisAddr != "" {
		redisSink := notify.NewRedisSink(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisSink.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop notification sink", err)
		} else {
			sink = redisSink
			closers = append(closers, redisSink.Close)
			log.Println("notifications: redis")
		}
	} else {
		log.Println("notifications: noop")
	}

	gate, err := session.NewGate(cfg.AuthSecret, time.Duration(cfg.TokenTTLMinutes)*time.Minute, cfg.Scope, cfg.OwnerPIN, cfg.AttendantPIN)
	if err != nil {
		log.Fatalf("session gate: %v", err)
	}

	api := httpapi.New(repo, repo, sink, gate, cfg.AllowedOrigin, time.Duration(cfg.ScanDebounceMS)*time.Millisecond)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("sale engine listening on %s (scope %s)", cfg.Address(), gate.CurrentUserScope())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.OwnerPIN) < 6 {
		return fmt.Errorf("OWNER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.OwnerPIN); err != nil {
		return fmt.Errorf("OWNER_PIN is too weak: %w", err)
	}
	if cfg.AttendantPIN != "" {
		if len(cfg.AttendantPIN) < 6 {
			return fmt.Errorf("ATTENDANT_PIN must be at least 6 digits when set")
		}
		if err := validatePINStrength(cfg.AttendantPIN); err != nil {
			return fmt.Errorf("ATTENDANT_PIN is too weak: %w", err)
		}
		if cfg.AttendantPIN == cfg.OwnerPIN {
			return fmt.Errorf("ATTENDANT_PIN must differ from OWNER_PIN")
		}
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"222222": true, "333333": true, "444444": true, "555555": true,
		"666666": true, "777777": true, "888888": true, "999999": true,
		"121212": true, "112233": true, "123123": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
