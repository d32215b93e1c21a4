package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mingmou/internal/fixture"
)

var fixturesCmd = &cobra.Command{
	Use:   "fixtures",
	Short: "Demo image tools",
	Long:  `Inspect the demo images and their offline results`,
}

var listFixturesCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List demo images",
	Run: func(cmd *cobra.Command, args []string) {
		store := loadFixtures(loadConfig())
		for _, e := range store.List() {
			fmt.Printf("%s\t%s\t%.1f%%\t%s\n", e.Name, e.Label, e.Confidence*100, e.Description)
		}
	},
}

var showFixtureCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show the offline result of a demo image",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := loadFixtures(loadConfig())
		resp := store.Lookup(args[0])
		if resp == nil {
			logrus.Fatalf("demo image %s not found in set %s", args[0], store.SetName())
		}
		printJSON(resp)
	},
}

var schemaFixturesCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the fixtures file",
	Run: func(cmd *cobra.Command, args []string) {
		data, err := fixture.Schema()
		if err != nil {
			logrus.WithError(err).Fatal("generate schema")
		}
		fmt.Println(string(data))
	},
}

func init() {
	fixturesCmd.AddCommand(listFixturesCmd)
	fixturesCmd.AddCommand(showFixtureCmd)
	fixturesCmd.AddCommand(schemaFixturesCmd)
}
