package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tagwatch/console-sync/internal/backend"
	"github.com/tagwatch/console-sync/internal/broker"
	"github.com/tagwatch/console-sync/internal/bus"
	"github.com/tagwatch/console-sync/internal/config"
	httpapi "github.com/tagwatch/console-sync/internal/http"
	"github.com/tagwatch/console-sync/internal/http/handlers"
	"github.com/tagwatch/console-sync/internal/logging"
	"github.com/tagwatch/console-sync/internal/model"
	"github.com/tagwatch/console-sync/internal/notify"
	"github.com/tagwatch/console-sync/internal/poller"
	"github.com/tagwatch/console-sync/internal/prefs"
	"github.com/tagwatch/console-sync/internal/services/cameras"
	"github.com/tagwatch/console-sync/internal/services/gateways"
	"github.com/tagwatch/console-sync/internal/services/incidents"
	"github.com/tagwatch/console-sync/internal/services/timeline"
	"github.com/tagwatch/console-sync/internal/session"
	"github.com/tagwatch/console-sync/internal/storage"
	"github.com/tagwatch/console-sync/internal/visibility"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
		logger.Error("failed to create db directory", "err", err)
		os.Exit(1)
	}
	repo, err := storage.New(ctx, cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "err", err)
		os.Exit(1)
	}
	defer repo.Close()

	messageBus := bus.New(logger)
	defer messageBus.Close()

	senders := notify.Fanout{notify.NewLogSender(logger)}
	if cfg.NotifyDesktop {
		senders = append(senders, notify.NewDesktopSender(logger))
	}

	sess := session.New(repo, messageBus, logger)
	client := backend.NewClient(cfg.API.BaseURL, cfg.API.Timeout, sess)

	brokerManager := broker.NewManager(broker.Config{
		URL:            cfg.MQTT.BrokerURL(),
		ClientPrefix:   cfg.MQTT.ClientPrefix,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
	}, broker.NewPahoDialer(logger), messageBus, senders, logger)
	defer brokerManager.Disconnect()

	sess.OnChange(func(authenticated bool) {
		if authenticated {
			brokerManager.Connect()
			return
		}
		brokerManager.Disconnect()
	})
	if err := sess.Restore(ctx, cfg.API.Token); err != nil {
		logger.Warn("session restore failed", "err", err)
	}

	tracker := visibility.NewTracker(cfg.AlwaysVisible, logger)

	hiddenAnalytics := prefs.LoadKeySet(ctx, repo, prefs.KeyHiddenAnalytics, logger)
	hiddenIncidents := prefs.LoadIDSet(ctx, repo, prefs.KeyHiddenIncidents, logger)

	cameraEngine := cameras.NewEngine(client, hiddenAnalytics, messageBus, senders, cfg.Poll.CameraPageSize, logger)
	incidentNotifier := incidents.NewNotifier(client, hiddenIncidents, messageBus, senders, cfg.Poll.IncidentLimit, logger)
	reconciler := timeline.NewReconciler(client, messageBus, cfg.Timeline.PageSize, cfg.Timeline.BottomThreshold, logger)
	gatewayMonitor := gateways.NewMonitor(
		client,
		model.PresenceThresholds{
			OnlineWindow:     cfg.Gateway.OnlineWindow,
			OfflineThreshold: cfg.Gateway.OfflineThreshold,
		},
		cfg.Gateway.DebouncePolls,
		messageBus,
		senders,
		logger,
	)

	scheduler := poller.New(tracker.Visible, logger)
	streams := refreshGroup{
		scheduler.Schedule(ctx, "cameras", cfg.Poll.CameraInterval, whenAuthenticated(sess, cameraEngine.Poll)),
		scheduler.Schedule(ctx, "incidents", cfg.Poll.IncidentInterval, whenAuthenticated(sess, incidentNotifier.Poll)),
		scheduler.Schedule(ctx, "timeline", cfg.Poll.TimelineInterval, whenAuthenticated(sess, reconciler.Refresh)),
		scheduler.Schedule(ctx, "gateways", cfg.Poll.GatewayInterval, whenAuthenticated(sess, gatewayMonitor.Poll)),
	}
	defer streams.Stop()
	streams.TriggerRefresh()

	api := handlers.New(handlers.Deps{
		Session:   sess,
		Broker:    brokerManager,
		Cameras:   cameraEngine,
		Incidents: incidentNotifier,
		Timeline:  reconciler,
		Gateways:  gatewayMonitor,
		Refresher: streams,
		Viewers:   tracker,
		Bus:       messageBus,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(api),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server starting", "addr", httpServer.Addr, "broker", cfg.MQTT.BrokerURL(), "api", cfg.API.BaseURL)
	if err := httpapi.RunServer(ctx, httpServer, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated with error", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// refreshGroup fans a manual refresh out to every poll stream.
type refreshGroup []*poller.Handle

func (g refreshGroup) TriggerRefresh() {
	for _, handle := range g {
		handle.TriggerRefresh()
	}
}

func (g refreshGroup) Stop() {
	for _, handle := range g {
		handle.Stop()
	}
}

// whenAuthenticated skips a poll while nobody is logged in.
func whenAuthenticated(sess *session.Session, task poller.Task) poller.Task {
	return func(ctx context.Context) error {
		if !sess.Authenticated() {
			return nil
		}
		return task(ctx)
	}
}
