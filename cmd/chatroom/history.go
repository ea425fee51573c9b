package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chatroom/internal/app"
	"chatroom/pkg/types"
)

var (
	historyRoom  string
	historyLimit int
)

func init() {
	historyCmd.Flags().StringVarP(&historyRoom, "room", "r", types.DefaultRoom, "room to read")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum number of messages")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the stored history of a room, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if historyLimit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", historyLimit)
	}
	if !types.IsValidRoom(historyRoom) {
		return fmt.Errorf("%w: %q", types.ErrInvalidRoom, historyRoom)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Chat.StoreTimeout)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer store.Close()

	msgs, err := store.RecentByRoom(ctx, historyRoom, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	printHistory(cmd.OutOrStdout(), msgs)
	return nil
}

// printHistory writes msgs, given newest first, in chronological order.
func printHistory(w io.Writer, msgs []*types.Message) {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		fmt.Fprintf(w, "%s  %-20s %s\n", m.Timestamp.Local().Format(time.DateTime), m.SenderNickname, m.Content)
	}
}
