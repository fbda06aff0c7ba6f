package run

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	storbox "github.com/storbox-io/storbox"
)

var config struct {
	httpAddr string
}

var rootCmd = &cobra.Command{
	Use:     "storbox-server",
	Version: storbox.Version,
	Short:   "Storbox storage pool server",
	Long: `storbox-server manages a single-host storage pool.
It discovers candidate disks, provisions them into a mergerfs pool
protected by snapraid parity, and serves the HTTP API.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return subMain()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	fs := rootCmd.Flags()
	fs.StringVar(&config.httpAddr, "http-addr", "", "Listen address for the HTTP API, overrides the configuration file")
}
