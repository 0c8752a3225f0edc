package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warble-im/warble/history"
	"github.com/warble-im/warble/internal/config"
)

func newSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the local message archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			archive, err := history.Open(historyPath(cfg), log)
			if err != nil {
				return err
			}
			defer archive.Close()

			ids, err := archive.Search(query, limit)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("no matches")
				return nil
			}

			for _, id := range ids {
				m, err := archive.Get(id)
				if err != nil {
					log.Warn().Err(err).Str("messageId", id).Msg("skipping unreadable message")
					continue
				}
				where := m.RoomID
				if where == "" {
					where = m.ListenerID
				}
				fmt.Printf("%s  %s -> %s  %s\n",
					m.Timestamp.Format("2006-01-02 15:04"), m.TalkerID, where, m.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum results")
	return cmd
}
