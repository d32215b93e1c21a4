package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the detection model is loaded",
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig()
		cli := newClient(conf)
		st, err := cli.Status(context.Background())
		if err != nil {
			logrus.WithError(err).Fatalf("query %s", cli.BaseURL())
		}
		printJSON(st)
		if !st.ModelLoaded {
			logrus.Warn("model not loaded")
		}
	},
}
