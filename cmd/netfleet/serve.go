package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/netfleetpro/netfleet/api/router"
	"github.com/netfleetpro/netfleet/internal/database"
	"github.com/netfleetpro/netfleet/internal/lab"
	"github.com/netfleetpro/netfleet/internal/service"
	"github.com/netfleetpro/netfleet/pkg/logger"
)

func newServeCmd() *cobra.Command {
	var labConfig string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(labConfig)
		},
	}
	cmd.Flags().StringVar(&labConfig, "lab", "", "also start the lab devices described by this file")
	return cmd
}

func serve(labConfig string) error {
	logger.WithField("addr", cfg.GetServerAddr()).Info("Starting netfleet server")

	fleetService, err := service.Build(cfg, service.BuildOptions{})
	if err != nil {
		return err
	}
	if cfg.Database.Enabled {
		defer database.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := fleetService.Start(ctx); err != nil {
		return err
	}
	defer fleetService.Stop()

	// 实验室设备（可选）
	if labConfig != "" {
		lc, err := lab.LoadConfig(labConfig)
		if err != nil {
			logger.WithField("error", err).Warn("Lab: failed to load config, skip starting lab")
		} else if srv, err := lab.NewServer(*lc); err != nil {
			logger.WithField("error", err).Warn("Lab: failed to create server")
		} else if err := srv.Start(); err != nil {
			logger.WithField("error", err).Warn("Lab: failed to start")
		} else {
			defer srv.Stop()
		}
	}

	// 清单目录监听与热更新
	if cfg.Inventory.Watch {
		watcher := service.NewWatcher(cfg.Inventory.Dir, fleetService)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.WithField("error", err).Warn("Inventory watch stopped")
			}
		}()
	}

	server := &http.Server{
		Addr:           cfg.GetServerAddr(),
		Handler:        router.SetupRouter(cfg, fleetService),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logger.KV("addr", server.Addr, "mode", cfg.Server.Mode)).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	logger.Info("Shutting down server...")
	// 先取消进行中的运行，使同步请求尽快返回
	_ = fleetService.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return err
	}
	logger.Info("Server exited")
	return nil
}
