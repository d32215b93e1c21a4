package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mingmou/internal/render"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Detection history tools",
}

var listHistoryCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recent detections",
	Long:    `List recent detections from the history service, or the local history when it is unreachable`,
	Run: func(cmd *cobra.Command, args []string) {
		listHistory()
	},
}

var showHistoryCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a past detection result",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		showHistory(args[0])
	},
}

func init() {
	historyCmd.AddCommand(listHistoryCmd)
	historyCmd.AddCommand(showHistoryCmd)
}

func listHistory() {
	conf := loadConfig()
	hist := openHistory(conf)
	defer hist.Close()

	entries, err := newClient(conf).History(context.Background())
	if err != nil {
		logrus.WithError(err).Warn("history service unavailable, showing local history")
		entries = hist.List()
	} else {
		hist.Replace(entries)
		entries = hist.List()
	}

	if len(entries) == 0 {
		logrus.Info("No history found")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s\t%s\t%s\t%d%%\n", e.Id, e.Timestamp, e.DiseaseType, e.Confidence)
	}
}

func showHistory(id string) {
	conf := loadConfig()
	hist := openHistory(conf)
	defer hist.Close()

	resp, err := hist.Select(context.Background(), id, newClient(conf))
	if err != nil {
		logrus.WithError(err).Fatalf("load result %s", id)
	}
	view, err := render.Render(resp, render.Geometry{}, render.OptionsFrom(conf.Render))
	if err != nil {
		logrus.WithError(err).Fatalf("render result %s", id)
	}
	printJSON(view)
}
