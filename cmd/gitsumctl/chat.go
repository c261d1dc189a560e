package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arturoeanton/gitsum/internal/app"
	"github.com/arturoeanton/gitsum/internal/domain"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "chat <repository-url> <message...>",
		Short: "Ask a question about a processed repository",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				reply, err := a.Chat.Send(cmd.Context(), user, args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), reply)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "cli", "Chat session owner")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "history <repository-url>",
		Short: "Print the chat history for a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				msgs, err := a.Chat.History(cmd.Context(), user, args[0])
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), map[string][]domain.ChatMessage{"messages": msgs})
			})
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "cli", "Chat session owner")
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "clear <repository-url>",
		Short: "Clear the chat history for a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				if err := a.Chat.Clear(cmd.Context(), user, args[0]); err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), map[string]bool{"cleared": true})
			})
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "cli", "Chat session owner")
	return cmd
}
