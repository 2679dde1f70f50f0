// Package cli holds the cobra plumbing shared by relay commands: standard
// flags, styled help, error reporting and the version command.
package cli

import (
	"os"

	"github.com/grovetools/relay/config"
	"github.com/grovetools/relay/logging"
	"github.com/grovetools/relay/pkg/paths"
	"github.com/grovetools/relay/util/pathutil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CommandOptions holds the flags every relay command accepts.
type CommandOptions struct {
	ConfigFile string
	Socket     string
	Verbose    bool
	JSONOutput bool
}

// NewStandardCommand creates a command carrying the standard relay flags.
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to a relay.yml config file")
	cmd.PersistentFlags().String("socket", "", "Daemon socket path")

	SetStyledHelp(cmd)
	return cmd
}

// GetLogger returns the component logger adjusted for the command flags.
func GetLogger(cmd *cobra.Command, component string) *logrus.Entry {
	entry := logging.NewLogger(component)

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		entry.Logger.SetLevel(logrus.DebugLevel)
	}
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		entry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return entry
}

// GetOptions extracts the standard flags from a command.
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	socket, _ := cmd.Flags().GetString("socket")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if expanded, err := pathutil.Expand(socket); err == nil {
		socket = expanded
	}

	return CommandOptions{
		ConfigFile: configFile,
		Socket:     socket,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
	}
}

// SocketPath picks the daemon socket: the --socket flag, then the
// daemon.socket setting, then the default runtime location.
func (o CommandOptions) SocketPath(cfg *config.Config) string {
	if o.Socket != "" {
		return o.Socket
	}
	if cfg != nil && cfg.Daemon.Socket != "" {
		if expanded, err := pathutil.Expand(cfg.Daemon.Socket); err == nil {
			return expanded
		}
	}
	return paths.SocketPath()
}

// LoadConfig loads the file named by --config, or the layered default
// configuration when the flag is empty.
func LoadConfig(opts CommandOptions) (*config.Config, error) {
	if opts.ConfigFile != "" {
		path, err := pathutil.Expand(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		return config.Load(path)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.LoadFrom(cwd)
}
