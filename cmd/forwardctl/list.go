package main

import (
	"context"

	"github.com/spf13/cobra"

	"expensetracker/internal/model"
)

// listCmd superadmin 跨组织列表：rules / categories / integrations
func (a *app) listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules, categories or integrations across all organizations",
	}
	cmd.PersistentFlags().String("org-filter", "", "only rows of this organization")
	cmd.PersistentFlags().String("search", "", "case-insensitive name (or email address) search")
	cmd.PersistentFlags().Bool("active", true, "only rows with this is_active value")
	cmd.PersistentFlags().Bool("include-inactive", false, "include inactive rows when --active is not given")
	cmd.PersistentFlags().String("sort", "", "sort column")
	cmd.PersistentFlags().Bool("desc", false, "sort descending")
	cmd.PersistentFlags().Int("page", 1, "page number, starting at 1")
	cmd.PersistentFlags().Int("limit", 20, "page size (max 100)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "rules",
			Short: "List forwarding rules across organizations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd, func(ctx context.Context, s *stores) error {
					page, err := s.rules.ListAll(ctx, crossOrgQuery(cmd))
					if err != nil {
						return err
					}
					return printJSON(cmd, page)
				})
			},
		},
		&cobra.Command{
			Use:   "categories",
			Short: "List email categories across organizations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd, func(ctx context.Context, s *stores) error {
					page, err := s.categories.ListAll(ctx, crossOrgQuery(cmd))
					if err != nil {
						return err
					}
					return printJSON(cmd, page)
				})
			},
		},
		&cobra.Command{
			Use:   "integrations",
			Short: "List email integrations across organizations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd, func(ctx context.Context, s *stores) error {
					page, err := s.integrations.ListAll(ctx, crossOrgQuery(cmd))
					if err != nil {
						return err
					}
					return printJSON(cmd, page)
				})
			},
		},
	)
	return cmd
}

func crossOrgQuery(cmd *cobra.Command) model.CrossOrgQuery {
	f := cmd.Flags()
	q := model.CrossOrgQuery{IsActive: changedBool(cmd, "active")}
	q.OrgID, _ = f.GetString("org-filter")
	q.Search, _ = f.GetString("search")
	q.IncludeInactive, _ = f.GetBool("include-inactive")
	q.SortBy, _ = f.GetString("sort")
	q.SortDesc, _ = f.GetBool("desc")
	q.Page, _ = f.GetInt("page")
	q.Limit, _ = f.GetInt("limit")
	return q
}
