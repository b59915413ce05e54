package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"condoplex.org/internal/auth"
	"condoplex.org/internal/config"
	"condoplex.org/internal/httpapi"
	"condoplex.org/internal/notify"
	"condoplex.org/internal/obs"
	"condoplex.org/internal/policy"
	"condoplex.org/internal/proxy"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Policy grants come from Postgres when a DSN is configured, otherwise
	// the builtin table serves.
	var policyStore policy.Store
	var pgStore *policy.PGStore
	if cfg.PostgresDSN != "" {
		pgStore, err = policy.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open policy store: %v", err)
		}
		seedCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := pgStore.Ensure(seedCtx, policy.BuiltinGrants); err != nil {
			log.Printf("seed policy grants: %v", err)
		}
		cancel()
		policyStore = pgStore
	} else {
		policyStore = policy.NewStaticStore(policy.BuiltinGrants)
	}
	engine, err := policy.NewEngine(policyStore)
	if err != nil {
		log.Fatalf("policy engine: %v", err)
	}

	// Principal cache: Redis when configured, in-process otherwise.
	var cache auth.Cache
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		cache = auth.NewRedisCache(rdb)
	} else {
		cache = auth.NewMemoryCache()
	}

	authClient, err := auth.NewClient(cfg.UpstreamURL)
	if err != nil {
		log.Fatalf("auth client: %v", err)
	}
	sessions := auth.NewManager(authClient, cache,
		auth.WithManagerPrincipalTTL(cfg.PrincipalTTL),
		auth.WithManagerInvalidator(engine.Invalidate),
	)

	apiProxy, err := proxy.New(cfg.UpstreamURL)
	if err != nil {
		log.Fatalf("proxy: %v", err)
	}

	probe := httpapi.ReadyProbe{}
	if pgStore != nil {
		probe.DB = pgStore.DB()
	}
	if rdb != nil {
		probe.Redis = rdb
	}

	api, err := httpapi.New(httpapi.Options{
		Version:            version,
		UpstreamName:       apiProxy.Upstream().Host,
		Sessions:           sessions,
		Policy:             engine,
		Notifier:           notify.NewHub(),
		Proxy:              apiProxy,
		ReadyProbe:         probe,
		Tokens:             httpapi.NewServiceTokenVerifier(cfg.TokenSecret, cfg.TokenIssuer),
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		MaxBodyBytes:       cfg.MaxBodyBytes,
	})
	if err != nil {
		log.Fatalf("httpapi: %v", err)
	}

	// No Read/WriteTimeout: the proxy route streams bodies of unbounded size.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting condoplex-gateway %s on %s (upstream %s)", version, srv.Addr, apiProxy.Upstream())

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Println("Stopped")
}
