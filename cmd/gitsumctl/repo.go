package main

import (
	"github.com/spf13/cobra"

	"github.com/arturoeanton/gitsum/internal/app"
	"github.com/arturoeanton/gitsum/internal/domain"
)

func newProcessCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "process <repository-url>",
		Short: "Process a repository and wait for the run to finish",
		Long: `Process a repository. A fresh cached digest is reported immediately;
otherwise the command clones and analyses the repository, waits for the run to
record its outcome and prints the final status.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				ctx := cmd.Context()
				res, err := a.Scheduler.ProcessURL(ctx, args[0])
				if err != nil {
					return err
				}
				if res.Cached {
					return opts.print(cmd.OutOrStdout(), res)
				}

				if err := a.Scheduler.Wait(ctx); err != nil {
					return err
				}
				key, _, err := domain.ParseRepoURL(args[0])
				if err != nil {
					return err
				}
				st, err := a.Scheduler.GetStatus(ctx, key.Owner, key.Name)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), st)
			})
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <owner> <name>",
		Short: "Show the processing status of a repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				st, err := a.Scheduler.GetStatus(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), st)
			})
		},
	}
}

func newDigestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "digest <owner> <name>",
		Short: "Print the digest of a processed repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				d, err := a.Scheduler.Digest(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), d)
			})
		},
	}
}
