package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/ticketgate/internal/cache"
	memcache "github.com/dropDatabas3/ticketgate/internal/cache/memory"
	redcache "github.com/dropDatabas3/ticketgate/internal/cache/redis"
	"github.com/dropDatabas3/ticketgate/internal/config"
	adminctrl "github.com/dropDatabas3/ticketgate/internal/http/controllers/admin"
	metactrl "github.com/dropDatabas3/ticketgate/internal/http/controllers/meta"
	umactrl "github.com/dropDatabas3/ticketgate/internal/http/controllers/uma"
	"github.com/dropDatabas3/ticketgate/internal/http/router"
	umasvc "github.com/dropDatabas3/ticketgate/internal/http/services/uma"
	jwtx "github.com/dropDatabas3/ticketgate/internal/jwt"
	"github.com/dropDatabas3/ticketgate/internal/metrics"
	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
	"github.com/dropDatabas3/ticketgate/internal/rate"
	"github.com/dropDatabas3/ticketgate/internal/store/core"
	memstore "github.com/dropDatabas3/ticketgate/internal/store/memory"
	pgstore "github.com/dropDatabas3/ticketgate/internal/store/pg"
	"github.com/dropDatabas3/ticketgate/internal/uma/engine"
	"github.com/dropDatabas3/ticketgate/internal/uma/needsinfo"
	"github.com/dropDatabas3/ticketgate/internal/uma/pct"
	"github.com/dropDatabas3/ticketgate/internal/uma/permission"
	"github.com/dropDatabas3/ticketgate/internal/uma/policy"
	"github.com/dropDatabas3/ticketgate/internal/uma/rpt"
	"github.com/dropDatabas3/ticketgate/internal/uma/scopes"
	"github.com/dropDatabas3/ticketgate/internal/uma/session"
)

func main() {
	// .env es opcional; si no está, seguimos con el environment del sistema.
	_ = godotenv.Load()

	cfgPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path del YAML de configuración")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic("config: " + err.Error())
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "ticketgate",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	if err := metrics.Register(nil); err != nil {
		log.Fatal("metrics registration failed", logger.Err(err))
	}

	ctx := context.Background()

	repo, err := buildRepo(ctx, cfg)
	if err != nil {
		log.Fatal("storage init failed", logger.Err(err))
	}
	defer repo.Close()

	kv, redisClient := buildCache(cfg)

	keystore, err := buildKeystore(cfg)
	if err != nil {
		log.Fatal("keystore init failed", logger.Err(err))
	}
	issuer := jwtx.NewIssuer(cfg.UMA.Issuer, keystore)

	// Dominio UMA.
	var loader policy.Loader
	if cfg.UMA.PolicyFile != "" {
		loader = policy.FileLoader(cfg.UMA.PolicyFile)
	} else {
		log.Warn("no policy file configured; admin policy reload will be a no-op")
	}
	policies := policy.NewRegistry(loader)
	if loader != nil {
		if err := policies.Reload(ctx); err != nil {
			log.Fatal("initial policy load failed", logger.Err(err))
		}
	}
	gateway := policy.NewGateway(policies, cfg.PolicyTimeout())
	scopeReg := scopes.NewRegistry(repo)
	perms := permission.NewService(repo, cfg.TicketLifetime())
	pctMgr := pct.NewManager(repo, cfg.PCTLifetime())
	rptMgr := rpt.NewManager(repo, issuer, cfg.RPTLifetime())
	needs := needsinfo.NewEvaluator(gateway, scopeReg, perms, pctMgr, cfg.UMA.ClaimsGatheringEndpoint)
	eng := engine.New(repo, gateway, scopeReg, cfg.UMA.GrantAccessIfNoPolicies)
	sessions := session.NewManager(kv, cfg.TicketLifetime())

	tokenSvc := umasvc.NewTokenService(umasvc.TokenDeps{
		Repo:                     repo,
		Permissions:              perms,
		PCT:                      pctMgr,
		RPT:                      rptMgr,
		NeedsInfo:                needs,
		Engine:                   eng,
		Keystore:                 keystore,
		Issuer:                   cfg.UMA.Issuer,
		ValidateClaimToken:       cfg.UMA.ValidateClaimToken,
		RestrictResourceToClient: cfg.UMA.RestrictResourceToClient,
	})
	gatherSvc := umasvc.NewGatheringService(umasvc.GatheringDeps{
		Repo:        repo,
		Permissions: perms,
		PCT:         pctMgr,
		Sessions:    sessions,
	})

	var limiter rate.Limiter
	if cfg.Rate.Enabled {
		window, _ := time.ParseDuration(cfg.Rate.Window)
		if window <= 0 {
			window = time.Minute
		}
		if redisClient != nil {
			limiter = rate.NewRedisLimiter(redisClient, "rl:", cfg.Rate.MaxRequests, window)
		} else {
			limiter = rate.NewMemoryLimiter(cfg.Rate.MaxRequests, window)
		}
	}

	handler := router.New(router.Deps{
		Repo:        repo,
		Token:       umactrl.NewTokenController(tokenSvc),
		Gathering:   umactrl.NewGatheringController(gatherSvc),
		Meta:        metactrl.NewController(cfg.UMA.Issuer, keystore),
		Admin:       adminctrl.NewController(repo, perms, policies),
		RateLimiter: limiter,
		AdminAPIKey: cfg.Admin.APIKey,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info("ticketgate listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", logger.Err(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown incomplete", logger.Err(err))
	}
}

func buildRepo(ctx context.Context, cfg *config.Config) (core.Repository, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		st, err := pgstore.New(ctx, cfg.Storage.DSN, pgstore.Opts{
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			MinConns:        cfg.Storage.Postgres.MinConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Storage.Postgres.Migrate {
			if err := st.RunMigrations(ctx); err != nil {
				st.Close()
				return nil, err
			}
		}
		return st, nil
	default:
		return memstore.New(), nil
	}
}

func buildCache(cfg *config.Config) (cache.Cache, *rdb.Client) {
	if cfg.Cache.Kind == "redis" {
		client := rdb.NewClient(&rdb.Options{
			Addr: cfg.Cache.Redis.Addr,
			DB:   cfg.Cache.Redis.DB,
		})
		return redcache.New(client, cfg.Cache.Redis.Prefix), client
	}
	ttl, _ := time.ParseDuration(cfg.Cache.Memory.DefaultTTL)
	if ttl <= 0 {
		ttl = time.Hour
	}
	return memcache.New(ttl), nil
}

func buildKeystore(cfg *config.Config) (*jwtx.Keystore, error) {
	if cfg.UMA.KeystorePath == "" {
		return jwtx.NewKeystore()
	}
	return jwtx.LoadKeystore(cfg.UMA.KeystorePath)
}
