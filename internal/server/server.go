// Package server wires the relay's components together and exposes the
// localhost HTTP surface.
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/api"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/auth"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/backup"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/bridge"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/config"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/handler"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/inbox"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/localws"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/middleware"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/push"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/store"
)

type Server struct {
	cfg    config.Config
	db     *sql.DB
	logger *slog.Logger

	creds     *auth.Credentials
	client    *api.Client
	bridge    *bridge.Bridge
	inbox     *inbox.Inbox
	hub       *localws.Hub
	registrar *push.Registrar
	refresher *auth.Refresher
	backupMgr *backup.Manager
	reads     *store.ReadStateStore

	notificationH *handler.NotificationHandler
	pushH         *handler.PushHandler
	statusH       *handler.StatusHandler

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg config.Config, db *sql.DB, logger *slog.Logger) *Server {
	credStore := store.NewCredentialStore(db)
	reads := store.NewReadStateStore(db)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)

	creds := auth.NewCredentials(credStore, cfg.StatePassphrase)
	client := api.NewClient(api.Config{BaseURL: cfg.APIURL}, creds, logger.With("component", "api"))

	alerter := push.NewCommandAlerter(cfg.AlertCommand, nil, logger.With("component", "alert"))
	hub := localws.NewHub(logger.With("component", "localws"))

	b := bridge.New(bridge.Config{URL: cfg.WSURL}, creds, alerter, nil, logger.With("component", "bridge"))
	b.Subscribe(hub)

	var pushSvc *push.Service
	var pushH *handler.PushHandler
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
		forwarder := push.NewForwarder(pushSvc, pushStore, logger.With("component", "webpush"))
		b.Subscribe(forwarder)
	}

	registrar := push.NewRegistrar(push.RegistrarConfig{
		Enabled:        cfg.PushEnabled,
		PhysicalDevice: cfg.PhysicalDevice,
		ProjectID:      cfg.PushProjectID,
	}, client, credStore, logger.With("component", "push"))

	refresher := auth.NewRefresher(creds, client.Refresh, 0, logger.With("component", "refresher"))

	backupMgr := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		},
		DBPath:        cfg.DBPath,
		Passphrase:    cfg.StatePassphrase,
		Interval:      cfg.BackupInterval,
		RetentionDays: cfg.BackupRetention,
	}, db, backupStore, nil, logger.With("component", "backup"))

	in := inbox.New(client, reads, b, logger.With("component", "inbox"))

	return &Server{
		cfg:           cfg,
		db:            db,
		logger:        logger,
		creds:         creds,
		client:        client,
		bridge:        b,
		inbox:         in,
		hub:           hub,
		registrar:     registrar,
		refresher:     refresher,
		backupMgr:     backupMgr,
		reads:         reads,
		notificationH: handler.NewNotificationHandler(in, logger.With("component", "notifications")),
		pushH:         pushH,
		statusH:       handler.NewStatusHandler(b, registrar, backupMgr),
	}
}

// Start brings the relay online: prunes stale read-state, opens the inbox
// (which connects the bridge), registers for push, and starts the background
// loops. A missing token or unreachable backend is not fatal; the relay
// comes up degraded and recovers as state appears.
func (s *Server) Start(ctx context.Context) {
	s.pruneReadState()

	if err := s.inbox.Open(ctx); err != nil {
		s.logger.Warn("inbox open degraded", "error", err)
	}

	if userID, err := s.creds.UserID(); err != nil {
		s.logger.Debug("push registration skipped: no identity", "error", err)
	} else {
		go s.registrar.Register(ctx, userID)
	}

	s.refresher.Start(ctx)
	s.backupMgr.Start(ctx)

	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.pruneReadState()
			}
		}
	}()
}

// Stop shuts the relay down in reverse order.
func (s *Server) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	s.backupMgr.Stop()
	s.refresher.Stop()
	s.inbox.Close()
}

func (s *Server) pruneReadState() {
	if s.cfg.ReadRetention <= 0 {
		return
	}
	pruned, err := s.reads.Prune(time.Now().Add(-s.cfg.ReadRetention))
	if err != nil {
		s.logger.Error("prune read state", "error", err)
		return
	}
	if pruned > 0 {
		s.logger.Info("pruned stale read state", "count", pruned)
	}
}

// Bridge exposes the event bridge for consumers embedding the relay.
func (s *Server) Bridge() *bridge.Bridge {
	return s.bridge
}

// Inbox exposes the merged notification list.
func (s *Server) Inbox() *inbox.Inbox {
	return s.inbox
}

// BackupManager exposes the state backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupMgr
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.statusH.Health)
	mux.HandleFunc("GET /api/status", s.statusH.Status)
	mux.HandleFunc("GET /api/backups", s.statusH.ListBackups)

	mux.HandleFunc("GET /api/notifications", s.notificationH.List)
	mux.HandleFunc("POST /api/notifications/{id}/read", s.notificationH.MarkRead)
	mux.HandleFunc("POST /api/notifications/read-all", s.notificationH.MarkAllRead)

	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)
	}

	mux.HandleFunc("GET /ws", localws.Handler(s.hub, s.logger.With("component", "localws")))

	var h http.Handler = mux
	h = middleware.LoopbackOnly(h)
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}
