package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mingmou/internal/report"
	"mingmou/internal/session"
	"mingmou/internal/upload"
)

var (
	detectFixture bool
	renderDir     string
	exportReport  bool
)

var detectCmd = &cobra.Command{
	Use:   "detect <image>...",
	Short: "Run detection on images",
	Long: `Run detection on one image, or on several images as a batch.
With --fixture the argument names a demo image known to the detection server.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDetect(args)
	},
}

func init() {
	detectCmd.Flags().BoolVar(&detectFixture, "fixture", false, "Treat the argument as a demo image name")
	detectCmd.Flags().StringVar(&renderDir, "render-dir", "", "Write overlay.png and chart.png into this directory")
	detectCmd.Flags().BoolVar(&exportReport, "export", false, "Export the report into report.outputDir")
}

func readImages(paths []string) []upload.File {
	files := make([]upload.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			logrus.WithError(err).Fatalf("read image %s", p)
		}
		files = append(files, upload.File{Name: filepath.Base(p), Data: data})
	}
	return files
}

func runDetect(args []string) {
	conf := loadConfig()
	store := loadFixtures(conf)
	sess, closeSession := newSession(conf, newClient(conf), store)
	defer closeSession()

	if detectFixture {
		if len(args) != 1 {
			logrus.Fatal("--fixture takes exactly one demo image name")
		}
		if _, err := sess.SelectFixture(args[0]); err != nil {
			logrus.WithError(err).Fatal("select demo image")
		}
	} else {
		sel, err := sess.Select(readImages(args))
		if err != nil {
			logrus.WithError(err).Warn("some files were rejected")
		}
		if sel == nil {
			logrus.Fatal("no valid image selected")
		}
		logrus.Infof("%s: %d image(s)", sel.ActionLabel, len(sel.Images))
	}

	ctx := context.Background()
	if err := sess.Detect(ctx); err != nil {
		logrus.WithError(err).Fatal("detection failed")
	}

	st := sess.State()
	if st.Offline {
		logrus.Warn("detection service unavailable, showing demo result")
	}
	if st.Batch != nil {
		printJSON(st.Batch)
		return
	}
	printJSON(st.View)

	if renderDir != "" {
		writeRenders(sess, renderDir)
	}
	if exportReport {
		exp, err := sess.DownloadReport(ctx, report.FormatText)
		if err != nil {
			logrus.WithError(err).Fatal("export report")
		}
		p, err := report.Save(conf.Report.OutputDir, exp)
		if err != nil {
			logrus.WithError(err).Fatal("save report")
		}
		logrus.Infof("report saved to %s", p)
	}
}

func writeRenders(sess *session.Session, dir string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logrus.WithError(err).Fatalf("create %s", dir)
	}
	write := func(name string, fn func(f *os.File) error) {
		p := filepath.Join(dir, name)
		f, err := os.Create(p)
		if err != nil {
			logrus.WithError(err).Fatalf("create %s", p)
		}
		defer f.Close()
		if err := fn(f); err != nil {
			logrus.WithError(err).Errorf("render %s", name)
			return
		}
		logrus.Infof("wrote %s", p)
	}
	write("overlay.png", func(f *os.File) error { return sess.WriteOverlay(f) })
	write("chart.png", func(f *os.File) error { return sess.WriteChart(f, false) })
}
