package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <txhash>...",
	Short: "Fetches and persists the raw trace of each transaction.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(true)
		if err != nil {
			return err
		}

		p, stop, err := newOfflineProcessor(cmd.Context(), config, true)
		if err != nil {
			return err
		}
		defer stop()

		for _, hash := range args {
			raw, err := p.Fetch(cmd.Context(), hash)
			if err != nil {
				return err
			}

			log.WithFields(logrus.Fields{
				"tx_hash": raw.TxHash,
				"node":    raw.Metadata.Node,
				"dir":     config.Storage.Dir,
			}).Info("Trace persisted")

			fmt.Fprintln(cmd.OutOrStdout(), raw.TxHash)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
