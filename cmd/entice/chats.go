package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"entice/internal/config"
	"entice/internal/domain"
	"entice/internal/store"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func chatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Inspect the chats the bot tracks",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tracked chats",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			chats, err := db.LoadChats(cmd.Context())
			if err != nil {
				return err
			}
			writeChats(os.Stdout, chats, time.Now())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "forget [id]",
		Short: "Stop tracking a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chat id %q: %w", args[0], err)
			}
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			chat, err := db.GetChat(ctx, id)
			if err != nil {
				return err
			}
			if chat == nil {
				return fmt.Errorf("chat %d is not tracked", id)
			}
			if err := db.DeleteChat(ctx, id); err != nil {
				return err
			}
			fmt.Printf("Forgot chat %d (%s)\n", chat.ID, chat.Title)
			return nil
		},
	})

	return cmd
}

func openStore() (*store.SQLiteStore, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := store.Open(cfg.Database.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("chat store: %w", err)
	}
	return db, nil
}

func writeChats(w io.Writer, chats []domain.Chat, now time.Time) {
	if len(chats) == 0 {
		fmt.Fprintln(w, "No tracked chats.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tUPDATED")
	for _, c := range chats {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", c.ID, c.Title, humanize.RelTime(c.LastUpdated, now, "ago", "from now"))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%s chat(s)\n", humanize.Comma(int64(len(chats))))
}
