package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"expensetracker/internal/model"
)

func (a *app) emailsCmd() *cobra.Command {
	cmd := orgScoped(&cobra.Command{
		Use:   "emails",
		Short: "Inspect and triage detected emails",
	})

	list := &cobra.Command{
		Use:   "list",
		Short: "List detected emails, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := model.EmailFilter{
				CategoryID: changedString(cmd, "category"),
				IsRead:     changedBool(cmd, "read"),
				IsArchived: changedBool(cmd, "archived"),
			}
			f.Page, _ = cmd.Flags().GetInt("page")
			f.Limit, _ = cmd.Flags().GetInt("limit")
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				items, total, err := s.emails.List(ctx, orgID(cmd), f)
				if err != nil {
					return err
				}
				return printJSON(cmd, listResult[model.DetectedEmail]{Items: items, Total: total})
			})
		},
	}
	list.Flags().String("category", "", "only emails in this category")
	list.Flags().Bool("read", false, "only read (or with =false unread) emails")
	list.Flags().Bool("archived", false, "only archived (or with =false unarchived) emails")
	list.Flags().Int("page", 1, "page number, starting at 1")
	list.Flags().Int("limit", 20, "page size (max 100)")

	get := &cobra.Command{
		Use:   "get <email-id>",
		Short: "Show one email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				e, err := s.emails.Get(ctx, orgID(cmd), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, e)
			})
		},
	}

	update := &cobra.Command{
		Use:   "update <email-id>",
		Short: "Mark read / archived or recategorize an email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := model.EmailPatch{
				IsRead:     changedBool(cmd, "read"),
				IsArchived: changedBool(cmd, "archived"),
				CategoryID: changedString(cmd, "category"),
			}
			p.ClearCategory, _ = cmd.Flags().GetBool("clear-category")
			if p.ClearCategory && p.CategoryID != nil {
				return errors.New("--category and --clear-category are mutually exclusive")
			}
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				e, err := s.emails.Update(ctx, orgID(cmd), args[0], p)
				if err != nil {
					return err
				}
				return printJSON(cmd, e)
			})
		},
	}
	update.Flags().Bool("read", true, "is_read")
	update.Flags().Bool("archived", true, "is_archived")
	update.Flags().String("category", "", "move the email to this category")
	update.Flags().Bool("clear-category", false, "remove the email's category")

	cmd.AddCommand(list, get, update)
	return cmd
}
