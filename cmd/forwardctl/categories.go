package main

import (
	"context"

	"github.com/spf13/cobra"

	"expensetracker/internal/model"
)

func (a *app) categoriesCmd() *cobra.Command {
	cmd := orgScoped(&cobra.Command{
		Use:   "categories",
		Short: "Manage an organization's email categories",
	})

	list := &cobra.Command{
		Use:   "list",
		Short: "List categories ordered by name",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				items, total, err := s.categories.List(ctx, orgID(cmd), all)
				if err != nil {
					return err
				}
				return printJSON(cmd, listResult[model.EmailCategory]{Items: items, Total: total})
			})
		},
	}
	list.Flags().Bool("all", false, "include inactive categories")

	get := &cobra.Command{
		Use:   "get <category-id>",
		Short: "Show one category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				c, err := s.categories.Get(ctx, orgID(cmd), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, c)
			})
		},
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an active category",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			var in model.CreateCategoryInput
			userID, _ := f.GetString("user")
			in.Name, _ = f.GetString("name")
			in.Color, _ = f.GetString("color")
			in.Description = changedString(cmd, "description")
			in.Keywords, _ = f.GetStringSlice("keywords")
			in.SenderPatterns, _ = f.GetStringSlice("sender-patterns")

			return a.run(cmd, func(ctx context.Context, s *stores) error {
				c, err := s.categories.Create(ctx, orgID(cmd), userID, in)
				if err != nil {
					return err
				}
				return printJSON(cmd, c)
			})
		},
	}
	create.Flags().String("user", "", "creating user id")
	create.Flags().String("name", "", "category name")
	create.Flags().String("color", "#6b7280", "display color")
	categoryFieldFlags(create)
	_ = create.MarkFlagRequired("user")
	_ = create.MarkFlagRequired("name")

	update := &cobra.Command{
		Use:   "update <category-id>",
		Short: "Change only the given fields of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := model.UpdateCategoryInput{
				Name:           changedString(cmd, "name"),
				Description:    changedString(cmd, "description"),
				Color:          changedString(cmd, "color"),
				Keywords:       changedStrings(cmd, "keywords"),
				SenderPatterns: changedStrings(cmd, "sender-patterns"),
				IsActive:       changedBool(cmd, "active"),
			}
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				c, err := s.categories.Update(ctx, orgID(cmd), args[0], in)
				if err != nil {
					return err
				}
				return printJSON(cmd, c)
			})
		},
	}
	update.Flags().String("name", "", "category name")
	update.Flags().String("color", "", "display color")
	update.Flags().Bool("active", true, "is_active")
	categoryFieldFlags(update)

	del := &cobra.Command{
		Use:   "delete <category-id>",
		Short: "Delete a category; its emails become uncategorized",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				if err := s.categories.Delete(ctx, orgID(cmd), args[0]); err != nil {
					return err
				}
				return printJSON(cmd, map[string]string{"deleted": args[0]})
			})
		},
	}

	cmd.AddCommand(list, get, create, update, del)
	return cmd
}

func categoryFieldFlags(cmd *cobra.Command) {
	cmd.Flags().String("description", "", "description")
	cmd.Flags().StringSlice("keywords", nil, "comma-separated keywords")
	cmd.Flags().StringSlice("sender-patterns", nil, "comma-separated sender patterns")
}
