package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/predeactor/captchad/internal/api"
	"github.com/predeactor/captchad/internal/domain"
	"github.com/predeactor/captchad/internal/event"
	"github.com/predeactor/captchad/internal/gateway"
	"github.com/predeactor/captchad/internal/guildconfig"
	"github.com/predeactor/captchad/internal/session"
	"github.com/predeactor/captchad/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Cache struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		GuildConfig struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			cache  redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres struct {
			guildconfig *pgxpool.Pool
		}
	}

	service struct {
		store  guildconfig.Store
		engine *session.Engine
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.cache, err = connect(s.c.Redis.Cache.Addrs, s.c.Redis.Cache.Pass)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g := s.c.Postgres.GuildConfig
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", g.User, g.Pass, g.Addr, g.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres.guildconfig = db
	return nil
}

func (s *Server) initService() {
	s.service.store = guildconfig.NewCachedStore(guildconfig.CacheConfig{
		Store:  guildconfig.NewPostgresStore(s.infra.postgres.guildconfig),
		Redis:  s.infra.redis.cache,
		Prefix: s.c.Redis.Cache.Prefix,
	})

	// The in-memory gateway stands in until a chat platform adapter is
	// plugged; every session flow runs against the same interfaces.
	platform := gateway.NewFake()

	s.service.engine = session.NewEngine(session.EngineConfig{
		Store:     s.service.store,
		Messenger: platform,
		Events:    platform,
		Roles:     platform,
		Remover:   platform,
		EventBus:  s.eb,
		Metrics:   session.NewMetrics(prometheus.DefaultRegisterer),
	})

	s.eb.Subscribe(domain.EventNameChallengePassed, func(ctx context.Context, e event.Event) error {
		p := e.(domain.EventChallengePassed)
		slog.InfoContext(ctx, "server: challenge passed",
			"entity", p.Entity.ID, "guild", p.Entity.Guild, "session", p.SessionID)
		return nil
	})
	s.eb.Subscribe(domain.EventNameChallengeFailed, func(ctx context.Context, e event.Event) error {
		f := e.(domain.EventChallengeFailed)
		slog.InfoContext(ctx, "server: challenge failed",
			"entity", f.Entity.ID, "guild", f.Entity.Guild, "session", f.SessionID,
			"reason", f.Reason)
		return nil
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Engine:       s.service.engine,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	// Running sessions are cancelled and cleaned before the bus stops, so
	// their terminal events still get published.
	s.service.engine.Stop()
	s.eb.Stop()

	s.infra.postgres.guildconfig.Close()
	_ = s.infra.redis.cache.Close()
	_ = s.infra.redis.pubsub.Close()

	slog.InfoContext(ctx, "server: shutdown completed")
}
