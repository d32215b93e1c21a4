package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mingmou/internal/server"
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Start the detection console",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func runServe() {
	conf := loadConfig()
	logrus.Infof("config: %+v", conf.Redacted())

	store := loadFixtures(conf)
	cli := newClient(conf)
	sess, closeSession := newSession(conf, cli, store)
	defer closeSession()

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	srv := server.NewServer(ctx, conf, sess, store, cli)
	go srv.Start()

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)

	<-termChan
	logrus.Infof("server is shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}
