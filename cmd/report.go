package cmd

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mingmou/internal/report"
)

var (
	reportFormat string
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report <result-id>",
	Short: "Download the report of a stored result",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		downloadReport(args[0])
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", report.FormatPDF, "Report format (pdf, text)")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Output directory, defaults to report.outputDir")
}

func downloadReport(resultId string) {
	conf := loadConfig()
	cli := newClient(conf)
	ctx := context.Background()

	resp, err := cli.Result(ctx, resultId)
	if err != nil {
		logrus.WithError(err).Fatalf("fetch result %s", resultId)
	}

	exporter := report.NewExporter(cli)
	var exp *report.Export
	switch reportFormat {
	case report.FormatPDF:
		exp, err = exporter.ExportPDF(ctx, resp, time.Now())
	case report.FormatText, report.FormatJSON:
		exp, err = exporter.Export(resp, time.Now())
	default:
		logrus.Fatalf("unknown report format %s", reportFormat)
	}
	if err != nil {
		logrus.WithError(err).Fatal("export report")
	}

	dir := reportOutput
	if dir == "" {
		dir = conf.Report.OutputDir
	}
	p, err := report.Save(dir, exp)
	if err != nil {
		logrus.WithError(err).Fatal("save report")
	}
	logrus.Infof("report saved to %s", p)

	if conf.Report.S3.Enabled {
		archiver, err := report.NewArchiver(conf.Report.S3)
		if err != nil {
			logrus.WithError(err).Fatal("create report archiver")
		}
		if _, err := archiver.Archive(ctx, exp); err != nil {
			logrus.WithError(err).Error("archive report")
		}
	}
}
