package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arturoeanton/gitsum/internal/app"
	"github.com/arturoeanton/gitsum/pkg/config"
)

type rootOptions struct {
	output string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "gitsumctl",
		Short:         "Process repositories into digests and chat about them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load() // silently ignore if .env doesn't exist
			switch opts.output {
			case "json", "yaml":
				return nil
			}
			return fmt.Errorf("unknown output format %q", opts.output)
		},
	}
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "json", "Output format: json or yaml")

	root.AddCommand(
		newProcessCmd(opts),
		newStatusCmd(opts),
		newDigestCmd(opts),
		newChatCmd(opts),
		newHistoryCmd(opts),
		newClearCmd(opts),
		newMigrateCmd(),
		newTokenCmd(),
	)
	return root
}

// withApp builds the services from the environment for the duration of fn.
func withApp(fn func(a *app.App) error) error {
	a, err := app.New(config.Load())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func (o *rootOptions) print(w io.Writer, v interface{}) error {
	if o.output == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
