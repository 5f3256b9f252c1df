package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qrave1/TalkRooms/internal/application/config"
	"github.com/qrave1/TalkRooms/internal/application/constant"
	"github.com/qrave1/TalkRooms/internal/application/metric"
	"github.com/qrave1/TalkRooms/internal/infra/adapters/memory"
	"github.com/qrave1/TalkRooms/internal/infra/adapters/postgres"
	"github.com/qrave1/TalkRooms/internal/infra/adapters/postgres/repository"
	"github.com/qrave1/TalkRooms/internal/infra/ports/http/handlers"
	"github.com/qrave1/TalkRooms/internal/infra/ports/http/server"
	"github.com/qrave1/TalkRooms/internal/usecase"
)

const shutdownTimeout = 5 * time.Second

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: level},
			),
		),
	)

	dbConn, err := postgres.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("connect to postgres", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer dbConn.Close()

	roomRepo := repository.NewRoomRepo(dbConn)
	statsRepo := repository.NewUserStatsRepo(dbConn)

	connections := memory.NewConnectionRegistry(cfg.WS.SendBuffer)
	rooms := memory.NewRoomStore()

	notifier := usecase.NewNotifier(connections)
	persister := usecase.NewPersister(cfg.Persist.QueueSize, cfg.Persist.Timeout)

	roomUsecase := usecase.NewRoomUsecase(cfg.Session, roomRepo, statsRepo, rooms, connections, notifier, persister)
	signalingUsecase := usecase.NewSignalingUsecase(rooms, connections, notifier)

	iceHandler := handlers.NewIceHandler(cfg)
	roomHandler := handlers.NewRoomHandler(roomUsecase, statsRepo)
	wsHandler := handlers.NewWebSocketHandler(cfg, roomUsecase, signalingUsecase, connections, notifier)

	echoSrv := server.New(cfg, iceHandler, roomHandler, wsHandler)
	metricsSrv := metric.NewServer(rooms, connections)

	// persister живёт дольше серверов, чтобы дописать изменения после их остановки
	persistCtx, stopPersister := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPersister()

	persistDone := make(chan error, 1)
	go func() {
		persistDone <- persister.Run(persistCtx)
	}()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server started", slog.String("port", cfg.Port))

		if err := echoSrv.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		if err := metricsSrv.Start(":" + cfg.MetricPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		slog.Info("Shutting down servers")

		timeoutCtx, timeoutCancel := context.WithTimeout(context.WithoutCancel(gCtx), shutdownTimeout)
		defer timeoutCancel()

		if err := echoSrv.Shutdown(timeoutCtx); err != nil {
			slog.Error("Failed to gracefully shutdown HTTP server", slog.Any(constant.Error, err))
		}

		if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
			slog.Error("Failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
		}

		return nil
	})

	exitCode := 0

	if err = g.Wait(); err != nil {
		slog.Error("server failed", slog.Any(constant.Error, err))
		exitCode = 1
	}

	roomUsecase.Stop()

	stopPersister()
	<-persistDone

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
