package cmd

import (
	"github.com/sirupsen/logrus"

	"mingmou/internal/config"
	"mingmou/internal/detector"
	"mingmou/internal/events"
	"mingmou/internal/fixture"
	"mingmou/internal/history"
	"mingmou/internal/report"
	"mingmou/internal/session"
	"mingmou/internal/upload"
	"mingmou/pkg/log"
)

func openHistory(conf *config.Config) *history.Store {
	var db *history.SnapshotDB
	if conf.History.DataDir != "" {
		var err error
		db, err = history.OpenSnapshotDB(conf.History.DataDir, log.Component("historyDB"))
		if err != nil {
			logrus.WithError(err).Fatalf("open history db %s", conf.History.DataDir)
		}
	}
	hist, err := history.NewStore(conf.History.Limit, db)
	if err != nil {
		logrus.WithError(err).Fatal("load history")
	}
	return hist
}

// newSession wires a console session. The returned func releases the history
// db and the event producer.
func newSession(conf *config.Config, cli *detector.Client, store *fixture.Store) (*session.Session, func()) {
	hist := openHistory(conf)

	publisher, err := events.NewPublisher(conf.Events.NSQ)
	if err != nil {
		logrus.WithError(err).Fatal("create event publisher")
	}

	opts := session.Options{
		Validator: upload.NewValidator(conf.Upload.MaxFileSize),
		Detector:  detector.NewService(cli, store, conf.API.UploadBeforeDetect),
		Fixtures:  store,
		Remote:    cli,
		History:   hist,
		Exporter:  report.NewExporter(cli),
		Publisher: publisher,
		Render:    conf.Render,
		ToastTTL:  conf.Toast.Duration(),
	}
	if conf.Report.S3.Enabled {
		archiver, err := report.NewArchiver(conf.Report.S3)
		if err != nil {
			logrus.WithError(err).Fatal("create report archiver")
		}
		opts.Archiver = archiver
	}

	return session.New(opts), func() {
		publisher.Stop()
		if err := hist.Close(); err != nil {
			logrus.WithError(err).Error("close history db")
		}
	}
}
