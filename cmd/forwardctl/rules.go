package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"expensetracker/internal/model"
)

func (a *app) rulesCmd() *cobra.Command {
	cmd := orgScoped(&cobra.Command{
		Use:   "rules",
		Short: "Manage an organization's forwarding rules",
	})

	list := &cobra.Command{
		Use:   "list",
		Short: "List rules, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				items, total, err := s.rules.List(ctx, orgID(cmd), all)
				if err != nil {
					return err
				}
				return printJSON(cmd, listResult[model.ForwardingRule]{Items: items, Total: total})
			})
		},
	}
	list.Flags().Bool("all", false, "include disabled rules")

	get := &cobra.Command{
		Use:   "get <rule-id>",
		Short: "Show one rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				r, err := s.rules.Get(ctx, orgID(cmd), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, r)
			})
		},
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an active rule for a category",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			names, _ := f.GetStringSlice("roles")
			roles, err := model.ParseRoles(names)
			if err != nil {
				return err
			}

			in := model.CreateRuleInput{
				Description: changedString(cmd, "description"),
				NotifyRoles: roles,
			}
			userID, _ := f.GetString("user")
			in.Name, _ = f.GetString("name")
			in.CategoryID, _ = f.GetString("category")
			in.NotifyUserIDs, _ = f.GetStringSlice("users")
			in.NotifyDepartmentIDs, _ = f.GetStringSlice("departments")
			in.NotifyDepartmentMemberIDs, _ = f.GetStringSlice("department-members")
			in.NotifyInApp, _ = f.GetBool("in-app")
			in.ForwardEmail, _ = f.GetBool("forward")

			return a.run(cmd, func(ctx context.Context, s *stores) error {
				r, err := s.rules.Create(ctx, orgID(cmd), userID, in)
				if err != nil {
					return err
				}
				return printJSON(cmd, r)
			})
		},
	}
	create.Flags().String("user", "", "creating user id")
	create.Flags().String("name", "", "rule name")
	create.Flags().String("category", "", "category id the rule applies to")
	create.Flags().Bool("in-app", true, "send in-app notifications")
	create.Flags().Bool("forward", false, "forward the email")
	ruleFieldFlags(create)
	_ = create.MarkFlagRequired("user")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("category")

	update := &cobra.Command{
		Use:   "update <rule-id>",
		Short: "Change only the given fields of a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := model.UpdateRuleInput{
				Name:                      changedString(cmd, "name"),
				Description:               changedString(cmd, "description"),
				CategoryID:                changedString(cmd, "category"),
				NotifyUserIDs:             changedStrings(cmd, "users"),
				NotifyDepartmentIDs:       changedStrings(cmd, "departments"),
				NotifyDepartmentMemberIDs: changedStrings(cmd, "department-members"),
				NotifyInApp:               changedBool(cmd, "in-app"),
				ForwardEmail:              changedBool(cmd, "forward"),
				IsActive:                  changedBool(cmd, "active"),
			}
			if names := changedStrings(cmd, "roles"); names != nil {
				roles, err := model.ParseRoles(*names)
				if err != nil {
					return err
				}
				in.NotifyRoles = &roles
			}
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				r, err := s.rules.Update(ctx, orgID(cmd), args[0], in)
				if err != nil {
					return err
				}
				return printJSON(cmd, r)
			})
		},
	}
	update.Flags().String("name", "", "rule name")
	update.Flags().String("category", "", "category id the rule applies to")
	update.Flags().Bool("in-app", true, "send in-app notifications")
	update.Flags().Bool("forward", false, "forward the email")
	update.Flags().Bool("active", true, "is_active")
	ruleFieldFlags(update)

	del := &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				if err := s.rules.Delete(ctx, orgID(cmd), args[0]); err != nil {
					return err
				}
				return printJSON(cmd, map[string]string{"deleted": args[0]})
			})
		},
	}

	cmd.AddCommand(list, get, create, update, a.setRuleActiveCmd("enable", true), a.setRuleActiveCmd("disable", false), del)
	return cmd
}

// setRuleActiveCmd 只改 is_active，其余字段保持不变
func (a *app) setRuleActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <rule-id>",
		Short: fmt.Sprintf("Set is_active=%t on a rule", active),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				r, err := s.rules.Update(ctx, orgID(cmd), args[0], model.UpdateRuleInput{IsActive: &active})
				if err != nil {
					return err
				}
				return printJSON(cmd, r)
			})
		},
	}
}

func ruleFieldFlags(cmd *cobra.Command) {
	cmd.Flags().String("description", "", "description")
	cmd.Flags().StringSlice("roles", nil,
		"roles to notify, one of: "+strings.Join(model.RoleStrings(model.AllRoles), ", "))
	cmd.Flags().StringSlice("users", nil, "user ids to notify")
	cmd.Flags().StringSlice("departments", nil, "department ids whose members are notified")
	cmd.Flags().StringSlice("department-members", nil, "department membership ids to notify")
}
