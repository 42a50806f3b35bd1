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

	"github.com/ariefcatur/go-shard-checkout/internal/config"
	"github.com/ariefcatur/go-shard-checkout/internal/dlock"
	"github.com/ariefcatur/go-shard-checkout/internal/httpx"
	"github.com/ariefcatur/go-shard-checkout/internal/redisx"
	"github.com/ariefcatur/go-shard-checkout/internal/stock"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	shards := redisx.NewShards(cfg.RedisAddrs, cfg.RedisPassword, cfg.RedisDB)
	defer shards.Close()

	locks := newLocks(cfg, shards)

	router := httpx.NewRouter()
	h := &httpx.StockHandler{
		Store:   &stock.Store{Shards: shards},
		Locks:   locks,
		LockTTL: cfg.LockTTL,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Printf("stock service listening at %s", cfg.HTTPAddr)
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
