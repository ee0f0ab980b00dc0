// cmd/gymdesk/server.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gymdesk/internal/accounts"
	"gymdesk/internal/chaos"
	"gymdesk/internal/clients"
	"gymdesk/internal/config"
	"gymdesk/internal/eventstore"
	"gymdesk/internal/httpjson"
	"gymdesk/internal/membership"
	"gymdesk/internal/storage/memory"
	"gymdesk/internal/storage/postgres"
)

// backends holds the stores selected by configuration.
type backends struct {
	members membership.Store
	users   accounts.Store
	journal membership.Journal
	db      *sql.DB
}

func (b *backends) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func openBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	var b backends

	switch cfg.Store {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		store := postgres.New(db)
		b = backends{members: store, users: store, journal: eventstore.NewEventStore(db), db: db}

	case config.StoreREST:
		// The hosted member store has no user table; accounts and the
		// journal stay in process.
		local := memory.New()
		b = backends{
			members: clients.NewMemberStoreClient(cfg.RESTURL, cfg.RESTKey, cfg.RESTTimeout),
			users:   local,
			journal: local,
		}
		logger.Warn("accounts are kept in memory with the REST member store")

	case config.StoreMemory:
		local := memory.New()
		b = backends{members: local, users: local, journal: local}

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	if cfg.FaultRate > 0 || cfg.FaultLatency > 0 {
		b.members = chaos.Wrap(b.members, chaos.Faults{
			FailureRate: cfg.FaultRate,
			Latency:     cfg.FaultLatency,
		}, time.Now().UnixNano(), logger.Named("chaos"))
		logger.Warn("fault injection enabled on member store reads",
			zap.Float64("failure_rate", cfg.FaultRate),
			zap.Duration("latency", cfg.FaultLatency))
	}

	logger.Info("storage ready", zap.String("store", cfg.Store))
	return &b, nil
}

// newRouter wires the services behind one chi router.
func newRouter(cfg *config.Config, b *backends, logger *zap.Logger) (http.Handler, error) {
	membersSvc := membership.NewService(b.members, b.journal, logger.Named("membership"), membership.Config{
		RosterTTL:  cfg.RosterTTL,
		DetailTTL:  cfg.DetailTTL,
		WriteLimit: rate.Limit(cfg.WriteRate),
		WriteBurst: cfg.WriteBurst,
	})

	accountsSvc := accounts.NewService(b.users, logger.Named("accounts"), accounts.Config{
		UserTTL:    cfg.UserTTL,
		LoginLimit: rate.Limit(cfg.LoginRate),
		LoginBurst: cfg.LoginBurst,
		OnLogout:   []func(uuid.UUID){membersSvc.ForgetOwner},
	})

	sessions, err := accounts.NewSessions(cfg.SessionKey, cfg.SecureCookies, logger.Named("sessions"))
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(sessions.LoadSessionUser)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Mount("/auth", accounts.Routes(accounts.NewHandler(accountsSvc, sessions, logger.Named("accounts"))))
	r.Mount("/", membership.Routes(membership.NewHandler(membersSvc, logger.Named("membership"))))

	return r, nil
}
