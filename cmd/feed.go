package cmd

import (
	"encoding/json"

	"example.com/socialfeed/internal/feed"
	"example.com/socialfeed/internal/store"
	"github.com/spf13/cobra"
)

var feedCmd = &cobra.Command{
	Use:   "feed <viewer-id>",
	Short: "Compute one home feed straight from the store and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.New(cmd.Context(), appCfg)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := feed.New(st, feed.WithLogger(logg)).ComputeFeed(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	},
}

func init() {
	rootCmd.AddCommand(feedCmd)
}
