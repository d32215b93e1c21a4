package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mingmou/internal/config"
	"mingmou/internal/detector"
	"mingmou/internal/fixture"
	"mingmou/internal/version"
	"mingmou/pkg/log"
)

const defaultConfigFile = "etc/config.yaml"

var (
	logLevel   string
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "mingmou",
	Short: "mingmou is a medical image detection console",
	Long: `A demo console for AI lesion detection on medical images.
Version: ` + version.VERSION + `/` + version.COMMIT,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.InitLog(logLevel)
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigFile, "Path to config file")

	rootCmd.AddCommand(serveCommand)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(fixturesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(statusCmd)
}

// loadConfig tolerates a missing file only at the default path.
func loadConfig() *config.Config {
	conf, err := config.InitConfig(configFile, configFile == defaultConfigFile)
	if err != nil {
		logrus.Fatal("initConfig error, ", err.Error())
	}
	return conf
}

func loadFixtures(conf *config.Config) *fixture.Store {
	store, err := fixture.Load(conf.Fixtures.File, conf.Fixtures.Set)
	if err != nil {
		logrus.WithError(err).Fatal("load fixtures")
	}
	return store
}

func newClient(conf *config.Config) *detector.Client {
	cli := detector.NewClient(conf.API)
	logrus.Debugf("detection api: %s", cli.BaseURL())
	return cli
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logrus.WithError(err).Fatal("marshal output")
	}
	fmt.Println(string(data))
}
