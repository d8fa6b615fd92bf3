package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/2re1million/ekko/internal/output"
	"github.com/2re1million/ekko/internal/storage"
)

func newMeetingsCmd(deps *dependencies) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "meetings",
		Short: "List stored meetings",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.NewMeetingStore(deps.cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			meetings, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(meetings)
			}

			f := output.NewFormatter(os.Stdout)
			if len(meetings) == 0 {
				f.Info("No meetings yet. Record one with: ekko record --process")
				return nil
			}
			f.MeetingListHeader()
			for _, m := range meetings {
				f.MeetingListItem(m)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of meetings to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print meetings as JSON")
	cmd.AddCommand(newMeetingShowCmd(deps))
	return cmd
}

func newMeetingShowCmd(deps *dependencies) *cobra.Command {
	var transcript bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.NewMeetingStore(deps.cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			m, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("meeting %s: %w", args[0], err)
			}
			output.NewFormatter(os.Stdout).MeetingComplete(m)
			if transcript {
				fmt.Fprintf(os.Stdout, "\nTranscript:\n%s\n", m.Transcript)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&transcript, "transcript", false, "Include the full transcript")
	return cmd
}
