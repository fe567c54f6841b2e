package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zjrosen/crew/internal/board"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "List the shared task board",
	Long: `Lists every item on the shared task board. With --watch the listing
is reprinted whenever the board database changes, until interrupted.`,
	RunE: runBoard,
}

func init() {
	boardCmd.Flags().Bool("watch", false, "follow board changes")
	rootCmd.AddCommand(boardCmd)
}

func runBoard(cmd *cobra.Command, args []string) error {
	store, err := board.OpenStore(cfg.BoardDir, board.WithTracer(tracer()))
	if err != nil {
		return fmt.Errorf("opening board: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := printBoard(cmd, store); err != nil {
		return err
	}

	watch, _ := cmd.Flags().GetBool("watch")
	if !watch {
		return nil
	}

	watcher, err := board.NewWatcher(cfg.BoardDir, board.DefaultDebounce)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	changes, err := watcher.Start()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer func() { _ = watcher.Stop() }()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	for {
		select {
		case <-interrupt:
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := printBoard(cmd, store); err != nil {
				return err
			}
		}
	}
}

func printBoard(cmd *cobra.Command, store *board.Store) error {
	items, err := store.ListAll()
	if err != nil {
		return fmt.Errorf("listing board: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tOWNER\tBLOCKED BY\tSUBJECT")
	for _, item := range items {
		owner := item.Owner
		if owner == "" {
			owner = "-"
		}
		blocked := "-"
		if len(item.BlockedBy) > 0 {
			blocked = strings.Join(item.BlockedBy, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", item.ID, item.Status, owner, blocked, item.Subject)
	}
	return w.Flush()
}
