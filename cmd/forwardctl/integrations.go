package main

import (
	"context"

	"github.com/spf13/cobra"

	"expensetracker/internal/model"
)

func (a *app) integrationsCmd() *cobra.Command {
	cmd := orgScoped(&cobra.Command{
		Use:   "integrations",
		Short: "Manage an organization's connected mailboxes",
	})

	list := &cobra.Command{
		Use:   "list",
		Short: "List integrations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				items, total, err := s.integrations.List(ctx, orgID(cmd), all)
				if err != nil {
					return err
				}
				return printJSON(cmd, listResult[model.EmailIntegration]{Items: items, Total: total})
			})
		},
	}
	list.Flags().Bool("all", false, "include disconnected mailboxes")

	get := &cobra.Command{
		Use:   "get <integration-id>",
		Short: "Show one integration with its last sync status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				in, err := s.integrations.Get(ctx, orgID(cmd), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, in)
			})
		},
	}

	connect := &cobra.Command{
		Use:   "connect",
		Short: "Connect a mailbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			provider, _ := cmd.Flags().GetString("provider")
			address, _ := cmd.Flags().GetString("email")
			in := model.ConnectIntegrationInput{Provider: model.Provider(provider), EmailAddress: address}
			if !in.Provider.Valid() {
				return model.ErrInvalidProvider
			}
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				created, err := s.integrations.Connect(ctx, orgID(cmd), userID, in)
				if err != nil {
					return err
				}
				return printJSON(cmd, created)
			})
		},
	}
	connect.Flags().String("user", "", "connecting user id")
	connect.Flags().String("provider", string(model.ProviderGmail), "gmail, outlook or other")
	connect.Flags().String("email", "", "mailbox address")
	_ = connect.MarkFlagRequired("user")
	_ = connect.MarkFlagRequired("email")

	update := &cobra.Command{
		Use:   "update <integration-id>",
		Short: "Change the provider or is_active of an integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := model.IntegrationPatch{IsActive: changedBool(cmd, "active")}
			if v := changedString(cmd, "provider"); v != nil {
				provider := model.Provider(*v)
				p.Provider = &provider
			}
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				in, err := s.integrations.Update(ctx, orgID(cmd), args[0], p)
				if err != nil {
					return err
				}
				return printJSON(cmd, in)
			})
		},
	}
	update.Flags().String("provider", "", "gmail, outlook or other")
	update.Flags().Bool("active", true, "is_active")

	disconnect := &cobra.Command{
		Use:   "disconnect <integration-id>",
		Short: "Remove a mailbox connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				if err := s.integrations.Disconnect(ctx, orgID(cmd), args[0]); err != nil {
					return err
				}
				return printJSON(cmd, map[string]string{"disconnected": args[0]})
			})
		},
	}

	cmd.AddCommand(list, get, connect, update, disconnect)
	return cmd
}
