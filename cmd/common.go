package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/grovetools/relay/cli"
	"github.com/grovetools/relay/config"
	"github.com/grovetools/relay/logging"
	"github.com/grovetools/relay/pkg/daemon"
	"github.com/grovetools/relay/pkg/events"
	"github.com/grovetools/relay/pkg/session"
	"github.com/spf13/cobra"
)

// environment is what most commands need before doing anything.
type environment struct {
	opts cli.CommandOptions
	cfg  *config.Config
}

func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	opts := cli.GetOptions(cmd)
	cfg, err := cli.LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	return &environment{opts: opts, cfg: cfg}, nil
}

func (e *environment) socket() string {
	return e.opts.SocketPath(e.cfg)
}

// connect dials the running daemon.
func connect(cmd *cobra.Command) (*daemon.RemoteClient, *environment, error) {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return nil, nil, err
	}
	client, err := daemon.Dial(env.socket())
	if err != nil {
		return nil, nil, err
	}
	return client, env, nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// renderEvent prints one bus event for a human or as a JSON line.
func renderEvent(w io.Writer, pretty *logging.PrettyLogger, jsonOutput bool, ev events.Event) {
	if jsonOutput {
		data, err := json.Marshal(ev)
		if err == nil {
			fmt.Fprintln(w, string(data))
		}
		return
	}
	switch ev.Type {
	case events.TypeLog:
		pretty.Event(string(ev.Log.Kind), ev.Log.Data)
	case events.TypeConfigReload:
		pretty.InfoPretty("Configuration reloaded from " + ev.File)
	case events.TypeSessionRemoved:
		pretty.WarnPretty("Session " + ev.SessionID + " removed")
	}
}

// followTurn prints events from stream until the current turn ends.
func followTurn(ctx context.Context, w io.Writer, stream <-chan events.Event, jsonOutput bool) error {
	pretty := logging.NewPrettyLogger().WithWriter(w)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream:
			if !ok {
				return fmt.Errorf("event stream closed before the turn finished")
			}
			renderEvent(w, pretty, jsonOutput, ev)
			if ev.Type == events.TypeSessionRemoved {
				return nil
			}
			if ev.Type == events.TypeLog && session.TurnEnded(*ev.Log) {
				return nil
			}
		}
	}
}
