package main

import (
	"fmt"

	"github.com/danmuck/boardsync/internal/board"
	"github.com/danmuck/boardsync/internal/persistence"
	"github.com/spf13/cobra"
)

type conversationFlags struct {
	id          string
	aclURL      string
	kmsResource string
	keyURL      string
}

func (f *conversationFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "conversation-id", "", "owning conversation id")
	cmd.Flags().StringVar(&f.aclURL, "acl-url", "", "conversation ACL url")
	cmd.Flags().StringVar(&f.kmsResource, "kms-resource-url", "", "conversation KMS resource object url")
	cmd.Flags().StringVar(&f.keyURL, "key-url", "", "default content encryption key url")
}

func (f *conversationFlags) conversation() board.Conversation {
	return board.Conversation{
		ID:                              f.id,
		ACLURL:                          f.aclURL,
		KMSResourceObjectURL:            f.kmsResource,
		DefaultActivityEncryptionKeyURL: f.keyURL,
	}
}

func channelCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage board channels",
	}
	cmd.AddCommand(channelCreateCmd(a), channelGetCmd(a), channelListCmd(a), channelDeleteCmd(a))
	return cmd
}

func channelCreateCmd(a *app) *cobra.Command {
	conv := &conversationFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a channel in a conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if conv.keyURL == "" {
				return fmt.Errorf("--key-url required")
			}
			created, err := a.client.CreateChannel(cmd.Context(), conv.conversation(), board.Channel{
				DefaultEncryptionKeyURL: conv.keyURL,
			})
			if err != nil {
				return err
			}
			return a.printJSON(created)
		},
	}
	conv.bind(cmd)
	return cmd
}

func channelGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <channel-id>",
		Short: "Show one channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channel, err := a.client.GetChannel(cmd.Context(), board.Channel{ChannelID: args[0]})
			if err != nil {
				return err
			}
			return a.printJSON(channel)
		},
	}
}

func channelListCmd(a *app) *cobra.Command {
	conv := &conversationFlags{}
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List channels of a conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.client.ListChannels(cmd.Context(), conv.conversation(), persistence.ListChannelsOptions{ChannelsLimit: limit})
			if err != nil {
				return err
			}
			return a.printJSON(list)
		},
	}
	conv.bind(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "channels per page (service default when zero)")
	return cmd
}

func channelDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <channel-id>",
		Short: "Delete a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client.DeleteChannel(cmd.Context(), board.Channel{ChannelID: args[0]})
		},
	}
}
