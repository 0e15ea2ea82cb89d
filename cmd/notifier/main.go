package main

import (
	"context"
	"errors"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/zlog"

	"github.com/projectdesk/notify/internal/api/handlers/control"
	"github.com/projectdesk/notify/internal/api/router"
	"github.com/projectdesk/notify/internal/api/server"
	"github.com/projectdesk/notify/internal/client/directory"
	"github.com/projectdesk/notify/internal/client/events"
	"github.com/projectdesk/notify/internal/config"
	"github.com/projectdesk/notify/internal/dedup"
	"github.com/projectdesk/notify/internal/rabbitmq/queue"
	"github.com/projectdesk/notify/internal/repository/history"
	"github.com/projectdesk/notify/internal/sink"
	"github.com/projectdesk/notify/internal/socket"
	"github.com/projectdesk/notify/internal/worker/attendance"
	"github.com/projectdesk/notify/internal/worker/calendar"
	"github.com/projectdesk/notify/internal/worker/dispatch"
	"github.com/projectdesk/notify/pkg/email"
	"github.com/projectdesk/notify/pkg/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.Must()
	val := validator.New()

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL(), cfg.RabbitMQ.Retries, cfg.RabbitMQ.Pause)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to open channel")
	}

	q, err := queue.NewNotificationQueue(ch)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create notification queue")
	}

	sinks := sink.Multi{sink.Log{}, sink.NewQueue(q, cfg.Retry)}

	var db *dbpg.DB
	if cfg.Database.Master.Host != "" {
		opts := &dbpg.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}

		slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
		for _, s := range cfg.Database.Slaves {
			slaveDSNs = append(slaveDSNs, s.DSN())
		}

		db, err = dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
		}
	}

	var histRepo *history.Repository
	if db != nil {
		histRepo = history.NewRepository(db)
		sinks = append(sinks, sink.NewHistory(histRepo))
	} else {
		zlog.Logger.Info().Msg("no database configured, notification history disabled")
	}

	var seen dedup.Store = dedup.NewMemory()
	if cfg.Redis.Address != "" {
		dbNum, err := strconv.Atoi(cfg.Redis.Database)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to parse redis database")
		}

		rdb := redis.New(cfg.Redis.Address, cfg.Redis.Password, dbNum)
		if err = rdb.Ping(ctx).Err(); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to redis")
		}

		seen = dedup.NewRedis(rdb)
	}

	profiles := directory.NewClient(cfg.API.BaseURL)
	calendarAPI := events.NewClient(cfg.API.BaseURL)

	attendanceSched := attendance.New(profiles, sinks)
	calendarNotifier := calendar.New(calendarAPI, sinks, seen)

	socketURL := cfg.Socket.URL
	if socketURL == "" {
		socketURL = socket.EndpointFromAPIBase(cfg.API.BaseURL)
	}

	manager := socket.NewManager(socket.NewWebsocketTransport(), socket.Options{
		URL:               socketURL,
		HeartbeatInterval: cfg.Socket.HeartbeatInterval,
		SettleDelay:       cfg.Socket.SettleDelay,
		ReconnectBase:     cfg.Socket.ReconnectBase,
		ReconnectMax:      cfg.Socket.ReconnectMax,
	})

	unsubscribe := manager.OnConnectionChange(func(state socket.State, reason string) {
		zlog.Logger.Info().Str("state", string(state)).Str("reason", reason).Msg("socket state changed")
	})
	defer unsubscribe()

	channels := map[string]dispatch.Channel{}
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != "" {
		channels["telegram"] = dispatch.Channel{
			Client: telegram.NewClient(cfg.Telegram.Token),
			To:     cfg.Telegram.ChatID,
		}
	}
	if cfg.Email.SMTPHost != "" && cfg.Email.To != "" {
		smtpPort, err := strconv.Atoi(cfg.Email.SMTPPort)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to parse email smtp port")
		}

		channels["email"] = dispatch.Channel{
			Client: email.NewClient(cfg.Email.SMTPHost, smtpPort, cfg.Email.Username, cfg.Email.Password, cfg.Email.From),
			To:     cfg.Email.To,
		}
	}

	dispatcher := dispatch.NewDispatcher(q, channels)
	go dispatcher.Run(ctx, cfg.Retry, cfg.Workers.Count)

	// A nil *Repository must not end up inside the handler's interface field.
	var handler *control.Handler
	if histRepo != nil {
		handler = control.NewHandler(attendanceSched, calendarNotifier, manager, histRepo, val)
	} else {
		handler = control.NewHandler(attendanceSched, calendarNotifier, manager, nil, val)
	}
	r := router.New(handler)
	s := server.New(cfg.Server.HTTPPort, r)

	go func() {
		if err := s.ListenAndServe(); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	zlog.Logger.Info().Msg("shutdown signal received")

	attendanceSched.Stop()
	calendarNotifier.Stop()
	manager.Disconnect()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}

	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	if db != nil {
		if err := db.Master.Close(); err != nil {
			zlog.Logger.Printf("failed to close master DB: %v", err)
		}

		for i, s := range db.Slaves {
			if err := s.Close(); err != nil {
				zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
			}
		}
	}

	if err := ch.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close RabbitMQ channel")
	}

	if err := conn.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close RabbitMQ connection")
	}
}
