package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/codebuildervaibhav/transcript-queue/internal/queue"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the coordination table",
	}
	cmd.AddCommand(newQueueListCmd(), newQueueAddCmd(), newQueueMigrateCmd(), newQueueResetCmd())
	return cmd
}

func newQueueListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show rows and a per-status summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.table.ReadAll(ctx)
			if err != nil {
				return err
			}
			items := queue.ItemsFromRows(rows)

			counts := make(map[string]int)
			var out [][]string
			for _, item := range items {
				st := item.Status()
				counts[st.Label()]++
				if !all && (st.Stage == queue.StageDone || item.HasTranscript()) {
					continue
				}
				out = append(out, []string{
					strconv.Itoa(item.Row),
					item.ItemID,
					st.Label(),
					strconv.Itoa(len([]rune(item.Transcript))),
					truncate(item.SourceURL, 48),
				})
			}

			w := cmd.OutOrStdout()
			if len(out) > 0 {
				fmt.Fprintln(w, renderTable(
					[]string{"Row", "Item", "Status", "Transcript chars", "URL"},
					out,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				))
			}

			labels := make([]string, 0, len(counts))
			for label := range counts {
				labels = append(labels, label)
			}
			sort.Strings(labels)
			summary := make([][]string, 0, len(labels))
			for _, label := range labels {
				summary = append(summary, []string{label, strconv.Itoa(counts[label])})
			}
			fmt.Fprintln(w, renderTable([]string{"Status", "Rows"}, summary, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include finished rows")
	return cmd
}

func newQueueAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <url>...",
		Short: "Append video URLs as new unprocessed rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.table.ReadAll(ctx)
			if err != nil {
				return err
			}
			seen := make(map[string]bool)
			for _, item := range queue.ItemsFromRows(rows) {
				seen[item.ItemID] = true
			}

			var fresh [][]string
			w := cmd.OutOrStdout()
			for _, raw := range args {
				id := queue.ParseVideoID(raw)
				switch {
				case id == "":
					fmt.Fprintf(w, "skip %s: no video id found\n", raw)
				case seen[id]:
					fmt.Fprintf(w, "skip %s: already queued\n", id)
				default:
					seen[id] = true
					fresh = append(fresh, queue.NewRow(raw, id))
				}
			}
			if len(fresh) == 0 {
				return nil
			}
			if err := a.table.Append(ctx, fresh); err != nil {
				return err
			}
			fmt.Fprintf(w, "queued %d item(s)\n", len(fresh))
			return nil
		},
	}
}

func newQueueMigrateCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite legacy status strings into the current vocabulary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.table.ReadAll(ctx)
			if err != nil {
				return err
			}

			var changes [][]string
			for _, item := range queue.ItemsFromRows(rows) {
				next, ok := queue.MigrateLegacy(item.RawStatus, item.Transcript)
				if !ok {
					continue
				}
				changes = append(changes, []string{strconv.Itoa(item.Row), item.ItemID, item.RawStatus, next.Label()})
				if dryRun {
					continue
				}
				if err := a.table.UpdateCell(ctx, item.Row, int(queue.ColStatus)+1, next.String()); err != nil {
					return fmt.Errorf("row %d: %w", item.Row, err)
				}
			}

			w := cmd.OutOrStdout()
			if len(changes) == 0 {
				fmt.Fprintln(w, "no legacy statuses found")
				return nil
			}
			fmt.Fprintln(w, renderTable([]string{"Row", "Item", "From", "To"}, changes, []columnAlignment{alignRight}))
			if dryRun {
				fmt.Fprintf(w, "%d row(s) would change (dry run)\n", len(changes))
			} else {
				fmt.Fprintf(w, "%d row(s) migrated\n", len(changes))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the changes without writing them")
	return cmd
}

func newQueueResetCmd() *cobra.Command {
	var from []string
	var to string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Put failed rows back into circulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			target := queue.ParseStatus(to)
			if target.Stage == queue.StageUnknown || target.Stage == queue.StageDone {
				return fmt.Errorf("cannot reset to %q", to)
			}
			sources := make(map[queue.Stage]bool)
			for _, f := range from {
				st := queue.ParseStatus(f)
				if st.Stage == queue.StageUnknown || st.Stage == queue.StageDone {
					return fmt.Errorf("cannot reset from %q", f)
				}
				sources[st.Stage] = true
			}

			a, err := newApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.table.ReadAll(ctx)
			if err != nil {
				return err
			}

			n := 0
			for _, item := range queue.ItemsFromRows(rows) {
				if item.HasTranscript() || !sources[item.Status().Stage] {
					continue
				}
				if err := a.table.UpdateCell(ctx, item.Row, int(queue.ColStatus)+1, target.String()); err != nil {
					return fmt.Errorf("row %d: %w", item.Row, err)
				}
				n++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d row(s) reset to %s\n", n, target.Label())
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&from, "from", []string{queue.TagDownloadFailed, queue.TagTranscriptionFailed}, "statuses to reset")
	cmd.Flags().StringVar(&to, "to", queue.TagUnprocessed, "status to write (empty means unprocessed)")
	return cmd
}
