package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gosuda/vrcreator/internal/store/snapshot"
)

func newScenesCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "scenes <sessionId>",
		Short: "List the scenes saved for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshots, err := snapshot.New(a.cfg.Workspace.SnapshotsPath())
			if err != nil {
				return err
			}
			scenes, err := snapshots.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(scenes)
			}
			if len(scenes) == 0 {
				_, err = fmt.Fprintf(out, "no saved scenes for session %s\n", args[0])
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFILES\tSAVED")
			for _, s := range scenes {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Name, s.FileCount, s.SavedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
