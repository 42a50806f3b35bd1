package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-shard-checkout/internal/config"
	"github.com/ariefcatur/go-shard-checkout/internal/event"
	"github.com/ariefcatur/go-shard-checkout/internal/journal"
	kafkax "github.com/ariefcatur/go-shard-checkout/internal/kafka"
	"github.com/ariefcatur/go-shard-checkout/internal/postgres"
	"github.com/ariefcatur/go-shard-checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	repo := &journal.Repo{DB: db}
	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rdb := redisx.New(cfg.RedisAddrs[0], cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()

	svc := &journal.Service{
		Repo:        repo,
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-journal",
	}

	topics := []string{event.TopicCheckoutSucceeded, event.TopicCheckoutFailed}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.JournalGroup, topics, cfg.JournalWorkers)

	go func() {
		log.Printf("journal consumer started: group=%s topics=%v workers=%d",
			cfg.JournalGroup, topics, cfg.JournalWorkers)
		if err := cons.Start(ctx, svc.Handle); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
