package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-shard-checkout/internal/checkout"
	"github.com/ariefcatur/go-shard-checkout/internal/client"
	"github.com/ariefcatur/go-shard-checkout/internal/config"
	"github.com/ariefcatur/go-shard-checkout/internal/dlock"
	"github.com/ariefcatur/go-shard-checkout/internal/event"
	"github.com/ariefcatur/go-shard-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/go-shard-checkout/internal/kafka"
	"github.com/ariefcatur/go-shard-checkout/internal/order"
	"github.com/ariefcatur/go-shard-checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shards := redisx.NewShards(cfg.RedisAddrs, cfg.RedisPassword, cfg.RedisDB)
	defer shards.Close()

	locks := newLocks(cfg, shards)

	// Lifecycle events, one producer per topic.
	pOK := kafkax.NewProducer(cfg.KafkaBrokers, event.TopicCheckoutSucceeded, 1024)
	pOK.Start(ctx)
	pFail := kafkax.NewProducer(cfg.KafkaBrokers, event.TopicCheckoutFailed, 1024)
	pFail.Start(ctx)

	store := &order.Store{Shards: shards}
	stockCli := client.NewStock(cfg.StockURL, cfg.RemoteTimeout)
	payCli := client.NewPayment(cfg.PaymentURL, cfg.RemoteTimeout)

	co := &checkout.Orchestrator{
		Orders:  store,
		Stock:   stockCli,
		Payment: payCli,
		Locks:   locks,
		LockTTL: cfg.LockTTL,
		Events:  &event.Publisher{Succeed: pOK, Fail: pFail, Service: cfg.ServiceName},
	}

	router := httpx.NewRouter()
	h := &httpx.OrderHandler{
		Store:    store,
		Stock:    stockCli,
		Checkout: co,
		Locks:    locks,
		LockTTL:  cfg.LockTTL,
		Cache:    shards.All()[0],
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Printf("order service listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
	pOK.Close()
	pFail.Close()
	cancel()
	pOK.WaitClosed()
	pFail.WaitClosed()
}

func newLocks(cfg config.Config, shards *redisx.Shards) *dlock.Manager {
	if len(cfg.LockAddrs) == 0 {
		return dlock.NewSharded(shards)
	}
	masters := make([]*redis.Client, 0, len(cfg.LockAddrs))
	for _, a := range cfg.LockAddrs {
		masters = append(masters, redisx.New(a, cfg.RedisPassword, cfg.RedisDB))
	}
	return dlock.NewQuorum(masters)
}
