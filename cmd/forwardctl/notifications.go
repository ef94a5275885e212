package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

func (a *app) notificationsCmd() *cobra.Command {
	cmd := orgScoped(&cobra.Command{
		Use:   "notifications",
		Short: "Read a user's in-app notifications",
	})
	cmd.PersistentFlags().String("user", "", "recipient user id")
	_ = cmd.MarkPersistentFlagRequired("user")

	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications with the unread count",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			includeRead, _ := cmd.Flags().GetBool("include-read")
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				page, err := s.notifications.List(ctx, orgID(cmd), userID(cmd), limit, includeRead)
				if err != nil {
					return err
				}
				return printJSON(cmd, page)
			})
		},
	}
	list.Flags().Int("limit", 50, "max notifications")
	list.Flags().Bool("include-read", false, "include read notifications")

	unread := &cobra.Command{
		Use:   "unread",
		Short: "Print the unread count",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				n, err := s.notifications.UnreadCount(ctx, orgID(cmd), userID(cmd))
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int{"unread_count": n})
			})
		},
	}

	read := &cobra.Command{
		Use:   "read",
		Short: "Mark one (--id) or all (--all) notifications read",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			all, _ := cmd.Flags().GetBool("all")
			if (id == "") == !all {
				return errors.New("exactly one of --id or --all is required")
			}
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				if all {
					n, err := s.notifications.MarkAllRead(ctx, orgID(cmd), userID(cmd))
					if err != nil {
						return err
					}
					return printJSON(cmd, map[string]int64{"marked": n})
				}
				if err := s.notifications.MarkRead(ctx, orgID(cmd), userID(cmd), id); err != nil {
					return err
				}
				return printJSON(cmd, map[string]int64{"marked": 1})
			})
		},
	}
	read.Flags().String("id", "", "notification id")
	read.Flags().Bool("all", false, "mark every unread notification")

	cmd.AddCommand(list, unread, read)
	return cmd
}

func userID(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("user")
	return v
}
