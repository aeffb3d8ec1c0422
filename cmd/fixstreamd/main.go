package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/fixstream/fixstream/internal/actionstore"
	"github.com/fixstream/fixstream/internal/change"
	"github.com/fixstream/fixstream/internal/config"
	"github.com/fixstream/fixstream/internal/console"
	"github.com/fixstream/fixstream/internal/dispatcher"
	"github.com/fixstream/fixstream/internal/events"
	"github.com/fixstream/fixstream/internal/httpserver"
	"github.com/fixstream/fixstream/internal/notify"
	"github.com/fixstream/fixstream/internal/ownership"
	"github.com/fixstream/fixstream/internal/resolver"
	"github.com/fixstream/fixstream/internal/watcher"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.LoadFromEnv()

	// Database (optional; without it the store runs memory-only and nothing
	// survives a restart)
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open postgres: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("failed to ping postgres: %v", err)
		}
		log.Println("connected to postgres")
	} else {
		log.Println("no postgres configured; action records will not survive restarts")
	}

	// Console client (required)
	consoleClient, err := console.NewClient(console.ClientConfig{
		BaseURL:  cfg.ConsoleURL,
		Username: cfg.ConsoleUser,
		Password: cfg.ConsolePass,
		Insecure: cfg.ConsoleInsecure,
	})
	if err != nil {
		log.Fatalf("failed to initialize console client: %v", err)
	}

	// Action store: dual memory + durable when Postgres is present
	var durable actionstore.Durable
	var pinger httpserver.Pinger
	var ownerRepo resolver.OwnershipStore
	if db != nil {
		pg := actionstore.NewPGDurable(db)
		durable = pg
		pinger = pg
		ownerRepo = ownership.NewRepo(db)
	}
	store := actionstore.New(durable)

	// Recover records pending notification before the watcher's first tick.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := store.Recover(ctx); err != nil {
			log.Printf("warning: recovery load failed (continuing with empty memory store): %v", err)
		}
		cancel()
	}

	// Change-ticket validation (optional; triggers that require a ticket fail
	// closed when unconfigured)
	var validator change.Validator
	if cfg.ChangeAPIURL != "" {
		c, err := change.NewClient(change.ClientConfig{BaseURL: cfg.ChangeAPIURL, APIKey: cfg.ChangeAPIKey})
		if err != nil {
			log.Fatalf("failed to initialize change client: %v", err)
		}
		validator = c
		log.Printf("change validation configured (url=%s)", cfg.ChangeAPIURL)
	} else {
		log.Println("CHANGE_API_URL not configured; triggers requiring a change ticket will be rejected")
	}

	// Mail relay (optional)
	var mailer notify.Mailer
	if cfg.MailRelayURL != "" {
		m, err := notify.NewRelayMailer(notify.RelayConfig{BaseURL: cfg.MailRelayURL, From: cfg.MailFrom})
		if err != nil {
			log.Fatalf("failed to initialize mail relay: %v", err)
		}
		mailer = m
		log.Printf("mail relay configured (url=%s from=%s to=%v)", cfg.MailRelayURL, cfg.MailFrom, cfg.MailTo)
	} else {
		log.Println("MAIL_RELAY_URL not configured; lifecycle notifications disabled")
	}

	// Optional lifecycle event stream
	var publisher events.Publisher
	if cfg.KafkaBrokers != "" && cfg.KafkaTopic != "" {
		rawBrokers := strings.Split(cfg.KafkaBrokers, ",")
		brokers := make([]string, 0, len(rawBrokers))
		for _, b := range rawBrokers {
			b = strings.TrimSpace(b)
			if b != "" {
				brokers = append(brokers, b)
			}
		}
		p, err := events.NewKafkaPublisher(events.KafkaPublisherConfig{Brokers: brokers, Topic: cfg.KafkaTopic, MaxAttempts: 3})
		if err != nil {
			log.Fatalf("failed to initialize kafka publisher: %v", err)
		}
		publisher = p
		log.Printf("kafka publisher initialized (brokers=%v topic=%s)", brokers, cfg.KafkaTopic)
	} else {
		log.Println("lifecycle event stream not started: KAFKA_BROKERS and KAFKA_TOPIC must be set to enable")
	}

	// Optional result archive
	var archiver events.Archiver
	if cfg.S3Bucket != "" {
		a, err := events.NewS3Archiver(context.Background(), cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			log.Fatalf("failed to initialize s3 archiver: %v", err)
		}
		archiver = a
		log.Printf("s3 archiver initialized (bucket=%s prefix=%s)", cfg.S3Bucket, cfg.S3Prefix)
	}

	res := resolver.New(consoleClient, ownerRepo)

	disp := dispatcher.New(dispatcher.Options{
		Targets:   res,
		Console:   consoleClient,
		Store:     store,
		Validator: validator,
		Mailer:    mailer,
		Publisher: publisher,
	})

	// Background loops
	bgCtx, bgCancel := context.WithCancel(context.Background())

	lw := watcher.New(watcher.Options{
		Store:     store,
		Console:   consoleClient,
		Mailer:    mailer,
		Publisher: publisher,
		Archiver:  archiver,
		Config: watcher.Config{
			PollInterval: cfg.PollInterval,
			Recipients:   cfg.MailTo,
		},
	})
	go func() {
		if err := lw.Run(bgCtx); err != nil && err != context.Canceled {
			log.Printf("[watcher] exited with error: %v", err)
		}
	}()

	retention := watcher.NewRetention(store, cfg.RetentionInterval, cfg.RetentionDays, nil)
	go func() {
		if err := retention.Run(bgCtx); err != nil && err != context.Canceled {
			log.Printf("[retention] exited with error: %v", err)
		}
	}()

	// HTTP server
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      httpserver.New(disp, store, pinger, cfg.JWTSecret).Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting fixstreamd on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}

	// Signal the loops and give the current tick a short grace period; no
	// side effect is applied until a record's chain completes, so abandoning
	// in-flight polls is safe.
	bgCancel()
	time.Sleep(2 * time.Second)

	if publisher != nil {
		_ = publisher.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("server stopped")
}
