package commands

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-xlan/ordlock/internal/config"
	"github.com/go-xlan/ordlock/internal/lockmanager"
	"github.com/go-xlan/ordlock/internal/logging"
	"github.com/go-xlan/ordlock/internal/ordserver"
	"github.com/spf13/cobra"
	"github.com/yyle88/rese"
	"github.com/yyle88/zaplog"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lock server and block until SIGINT/SIGTERM",
	RunE:  runServe,
}

const shutdownGrace = 10 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.NewZapLogger(zaplog.LOGS.Skip(1))

	cfg := config.LoadServerConfig(cfgFile)

	listener := rese.P1(net.Listen("tcp", cfg.ListenAddr))
	defer rese.F0(listener.Close)

	manager := lockmanager.New(logger)
	srv := ordserver.New(manager, logger)

	logger.DebugLog("lock server starting", zap.String("addr", cfg.ListenAddr))

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.Serve(listener) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.DebugLog("shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.ErrorLog("shutdown did not complete cleanly", zap.Error(err))
			return err
		}
		return nil
	case err := <-serveErrCh:
		if err != nil {
			logger.ErrorLog("accept loop exited", zap.Error(err))
		}
		return err
	}
}
