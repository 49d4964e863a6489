package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/danmuck/boardsync/internal/board"
	"github.com/danmuck/boardsync/internal/persistence"
	"github.com/spf13/cobra"
)

func contentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contents",
		Short: "Read and write persisted board content",
	}
	cmd.AddCommand(contentsListCmd(a), contentsAddCmd(a), contentsClearCmd(a))
	return cmd
}

func contentsListCmd(a *app) *cobra.Command {
	var (
		rawQuery string
		since    string
		limit    int
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "list <channel-id>",
		Short: "Fetch and decrypt channel content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := url.ParseQuery(rawQuery)
			if err != nil {
				return fmt.Errorf("parse --query: %w", err)
			}
			if since != "" {
				values.Set("sinceDate", since)
			}
			if limit > 0 {
				values.Set("contentsLimit", strconv.Itoa(limit))
			}
			query := persistence.ParseContentQuery(values)

			channel := board.Channel{ChannelID: args[0]}
			if all {
				items, err := a.client.GetAllContent(cmd.Context(), channel, query)
				if err != nil {
					return err
				}
				return a.printJSON(items)
			}
			page, err := a.client.GetContents(cmd.Context(), channel, query)
			if err != nil {
				return err
			}
			return a.printJSON(page)
		},
	}
	cmd.Flags().StringVar(&rawQuery, "query", "", "content query string, e.g. sinceDate=...&contentsLimit=50 (other keys are ignored)")
	cmd.Flags().StringVar(&since, "since", "", "only content newer than this date")
	cmd.Flags().IntVar(&limit, "limit", 0, "contents per page")
	cmd.Flags().BoolVar(&all, "all", false, "follow pagination to the end instead of printing one page")
	return cmd
}

func contentsAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <channel-id> <text>...",
		Short: "Encrypt and append text items, one per argument",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			channel, err := a.client.GetChannel(cmd.Context(), board.Channel{ChannelID: args[0]})
			if err != nil {
				return err
			}
			items := make([]board.Item, 0, len(args)-1)
			for _, text := range args[1:] {
				items = append(items, board.Item{Payload: strings.TrimSpace(text)})
			}
			written, err := a.client.AddContent(cmd.Context(), channel, items)
			if err != nil {
				return err
			}
			return a.printJSON(written)
		},
	}
}

func contentsClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <channel-id>",
		Short: "Delete all channel content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client.DeleteAllContent(cmd.Context(), board.Channel{ChannelID: args[0]})
		},
	}
}
