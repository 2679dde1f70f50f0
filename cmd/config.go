package cmd

import (
	"fmt"
	"sort"

	"github.com/grovetools/relay/config"
	"github.com/grovetools/relay/logging"
	"github.com/grovetools/relay/util/pathutil"
	"github.com/spf13/cobra"
)

// NewConfigCmd returns the configuration inspection commands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect relay configuration",
		Long: `Configuration is merged from the global file (~/.config/relay/relay.yml),
the nearest relay.yml above the current directory and relay.override.yml
next to it.`,
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigValidateCmd(), newConfigSchemaCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration and where it came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			if env.opts.JSONOutput {
				return printJSON(cmd.OutOrStdout(), env.cfg)
			}

			w := cmd.OutOrStdout()
			for _, source := range []config.ConfigSource{config.SourceGlobal, config.SourceProject, config.SourceOverride} {
				if file, ok := env.cfg.Sources[source]; ok {
					fmt.Fprintf(w, "# %s: %s\n", source, file)
				}
			}
			if len(env.cfg.Sources) == 0 {
				fmt.Fprintln(w, "# no configuration files found; showing defaults")
			}
			data, err := env.cfg.Marshal()
			if err != nil {
				return err
			}
			fmt.Fprint(w, string(data))
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a configuration file against the schema and rules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg *config.Config
				err error
			)
			if len(args) == 1 {
				path, perr := pathutil.Expand(args[0])
				if perr != nil {
					return perr
				}
				cfg, err = config.Load(path)
			} else {
				var env *environment
				if env, err = loadEnvironment(cmd); err == nil {
					cfg = env.cfg
				}
			}
			if err != nil {
				return err
			}

			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			pretty.Success("Configuration is valid")
			names := make([]string, 0, len(cfg.Agents))
			for name := range cfg.Agents {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				pretty.Field("agent", name)
			}
			return nil
		},
	}
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema for relay.yml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
