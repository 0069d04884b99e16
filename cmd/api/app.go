package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/fkhayef/bankroll/docs"
	"github.com/fkhayef/bankroll/internal/cache"
	"github.com/fkhayef/bankroll/internal/config"
	"github.com/fkhayef/bankroll/internal/database"
	"github.com/fkhayef/bankroll/internal/group"
	"github.com/fkhayef/bankroll/internal/invitation"
	"github.com/fkhayef/bankroll/internal/joinrequest"
	"github.com/fkhayef/bankroll/internal/metrics"
	"github.com/fkhayef/bankroll/internal/notification"
	"github.com/fkhayef/bankroll/internal/store/gormstore"
	"github.com/fkhayef/bankroll/internal/user"
	"github.com/fkhayef/bankroll/internal/wallet"
	mw "github.com/fkhayef/bankroll/pkg/middleware"
)

// stores bundles the persistence ports of every feature
type stores struct {
	users         user.Store
	groups        group.Store
	invitations   invitation.Store
	joinRequests  joinrequest.Store
	notifications notification.Store
	wallet        group.WalletSeeder

	migrate func(ctx context.Context) error
	close   func() error
}

func (s *stores) Close() {
	if s.close != nil {
		_ = s.close()
	}
}

// openStores connects the store driver selected in cfg
func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := database.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info("connected to database", zap.String("driver", "postgres"))
		return sqlStores(db), nil

	case config.DriverGorm, config.DriverSQLite:
		driver := "postgres"
		if cfg.StoreDriver == config.DriverSQLite {
			driver = "sqlite"
		}
		gdb, err := database.OpenGorm(driver, cfg.DatabaseURL, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreDriver, err)
		}
		log.Info("connected to database", zap.String("driver", driver), zap.String("store", "gorm"))
		return gormStores(gdb)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func sqlStores(db *sql.DB) *stores {
	return &stores{
		users:         user.NewRepository(db),
		groups:        group.NewRepository(db),
		invitations:   invitation.NewRepository(db),
		joinRequests:  joinrequest.NewRepository(db),
		notifications: notification.NewRepository(db),
		wallet:        wallet.NewRepository(db),
		migrate: func(ctx context.Context) error {
			return database.Migrate(ctx, db)
		},
		close: db.Close,
	}
}

func gormStores(gdb *gorm.DB) (*stores, error) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	s := gormstore.New(gdb)
	return &stores{
		users:         s,
		groups:        s,
		invitations:   s,
		joinRequests:  s,
		notifications: s,
		wallet:        s,
		migrate: func(context.Context) error {
			return gormstore.Migrate(gdb)
		},
		close: sqlDB.Close,
	}, nil
}

// app holds the wired services and handlers
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	metrics    *metrics.Metrics
	dispatcher *notification.Dispatcher
	resolver   *invitation.Resolver
	sweeper    *invitation.Sweeper

	userHandler         *user.Handler
	groupHandler        *group.Handler
	invitationHandler   *invitation.Handler
	joinRequestHandler  *joinrequest.Handler
	notificationHandler *notification.Handler
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, st *stores) (*app, error) {
	m := metrics.New()

	// User feature
	userService := user.NewService(st.users)

	// Notification feature
	feed := notification.NewService(st.notifications)
	dispatcher := newDispatcher(cfg, log, m, feed).WithContacts(userService)

	// Group feature
	rosters, err := newRosterCache(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	groupService := group.NewService(st.groups,
		group.WithCache(rosters),
		group.WithNotifier(dispatcher),
		group.WithWallet(st.wallet),
		group.WithMetrics(m),
		group.WithLogger(log.Named("group")),
		group.WithPublicJoinNotification(cfg.Notifications.NotifyOnPublicJoin),
	)

	// Invitation feature
	inviteCfg := invitation.Config{
		TTL:        cfg.Invites.TTL,
		LinkTTL:    cfg.Invites.LinkTTL,
		BcryptCost: cfg.Invites.BcryptCost,
		BaseURL:    cfg.Invites.BaseURL,
	}
	inviteOpts := []invitation.Option{
		invitation.WithLogger(log.Named("invitation")),
		invitation.WithMetrics(m),
	}
	issuer := invitation.NewIssuer(st.invitations, groupService, userService, dispatcher, inviteCfg, inviteOpts...)
	resolver := invitation.NewResolver(st.invitations, groupService, userService, dispatcher, inviteOpts...)
	sweeper, err := invitation.NewSweeper(resolver, cfg.SweepSchedule, log.Named("sweeper"))
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
	}

	// Join request feature
	joinService := joinrequest.NewService(st.joinRequests, groupService, userService, dispatcher, m, log.Named("joinrequest"))

	return &app{
		cfg:                 cfg,
		log:                 log,
		metrics:             m,
		dispatcher:          dispatcher,
		resolver:            resolver,
		sweeper:             sweeper,
		userHandler:         user.NewHandler(userService),
		groupHandler:        group.NewHandler(groupService),
		invitationHandler:   invitation.NewHandler(issuer, resolver),
		joinRequestHandler:  joinrequest.NewHandler(joinService),
		notificationHandler: notification.NewHandler(feed),
	}, nil
}

// newDispatcher registers a provider sender for every configured channel and
// a log-only sender for the rest
func newDispatcher(cfg *config.Config, log *zap.Logger, m *metrics.Metrics, feed *notification.Service) *notification.Dispatcher {
	nc := cfg.Notifications
	d := notification.NewDispatcher(feed, notification.DispatcherConfig{
		Workers: nc.Workers,
		Timeout: nc.Timeout,
	}, log.Named("notify"), m)

	if nc.EmailAPIURL != "" {
		d.Register(notification.ChannelEmail, notification.NewEmailSender(nc.EmailAPIURL, nc.EmailAPIKey, nc.EmailFrom, nc.Timeout))
	} else {
		d.Register(notification.ChannelEmail, notification.NewLogSender(notification.ChannelEmail, log))
	}

	if nc.SMSAPIURL != "" {
		d.Register(notification.ChannelSMS, notification.NewSMSSender(nc.SMSAPIURL, nc.SMSAccountSID, nc.SMSAuthToken, nc.SMSFrom, nc.Timeout))
	} else {
		d.Register(notification.ChannelSMS, notification.NewLogSender(notification.ChannelSMS, log))
	}

	if nc.PushWebhookURL != "" {
		d.Register(notification.ChannelPush, notification.NewWebhookSender(nc.PushWebhookURL, nc.Timeout))
	}
	return d
}

// newRosterCache uses Redis when configured and an in-process cache otherwise
func newRosterCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (group.RosterCache, error) {
	if cfg.Cache.RedisURL == "" {
		return cache.NewLocal(cfg.Cache.MaxBytes, cfg.Cache.TTL), nil
	}
	client, err := cache.DialRedis(ctx, cfg.Cache.RedisURL)
	if err != nil {
		return nil, err
	}
	log.Info("roster cache backed by redis")
	return cache.NewRedis(client, cfg.Cache.TTL), nil
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLogger(a.log.Named("http")))
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	if a.cfg.MetricsEnabled {
		r.Handle("/metrics", a.metrics.Handler())
	}

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		if a.cfg.AuthMode == "dev" {
			a.log.Warn("dev auth enabled, X-Test-User-ID is trusted")
			r.Use(mw.TestUserMiddleware)
		} else {
			r.Use(mw.NewAuthenticator(a.cfg.JWTSecret).Middleware)
		}

		// Mount feature routers
		r.Mount("/users", a.userHandler.Routes())
		r.Mount("/groups", a.groupHandler.Routes())
		r.Mount("/invitations", a.invitationHandler.Routes())
		r.Mount("/join-requests", a.joinRequestHandler.Routes())
		r.Mount("/notifications", a.notificationHandler.Routes())
	})

	return r
}
