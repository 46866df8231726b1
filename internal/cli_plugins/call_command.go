package cliplugins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"deskd/internal/ipc"
	"deskd/internal/listener"

	"github.com/spf13/cobra"
)

type CallCommand struct {
	cmd *cobra.Command
	app *AppContext
}

func NewCallCommand(app *AppContext) *CallCommand {
	return &CallCommand{app: app}
}

var knownChannels = []string{
	ipc.ChannelWorkspaceLoad,
	ipc.ChannelWorkspaceSave,
	ipc.ChannelWorkspaceAddFolder,
	ipc.ChannelWorkspaceRemoveFolder,
	ipc.ChannelWorkspaceValidatePaths,
	ipc.ChannelWatchStart,
	ipc.ChannelWatchStop,
	ipc.ChannelWatchStatus,
}

func (c *CallCommand) Meta() *cobra.Command {
	if c.cmd != nil {
		return c.cmd
	}
	c.cmd = &cobra.Command{
		Use:   "call <channel> [json]",
		Short: "Invoke a channel on a running server",
		Long:  "Sends one request to a running deskd server and prints the response envelope.",
		Args:  cobra.RangeArgs(1, 2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return knownChannels, cobra.ShellCompDirectiveNoFileComp
		},
	}
	c.cmd.Flags().StringP("addr", "a", "", "server address (overrides http.address)")
	c.cmd.Flags().String("origin", "", "Origin header to send")
	c.cmd.Flags().BoolP("follow", "f", false, "keep printing pushed events after the reply")
	return c.cmd
}

func (c *CallCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	cfg, log, err := c.app.Load()
	if err != nil {
		return err
	}

	addr := cfg.HTTP.Address
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		addr = v
	}
	var header http.Header
	if origin, _ := cmd.Flags().GetString("origin"); origin != "" {
		header = http.Header{"Origin": []string{origin}}
	}

	var payload json.RawMessage
	if len(args) == 2 {
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("payload is not valid JSON")
		}
		payload = json.RawMessage(args[1])
	}

	url := addr
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + url
	}
	client, err := listener.Dial(ctx, url, header, log)
	if err != nil {
		return err
	}
	defer client.Close()

	reply, err := client.Call(ctx, args[0], payload)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reply); err != nil {
		return err
	}
	if err := reply.Err(); err != nil {
		return err
	}

	if follow, _ := cmd.Flags().GetBool("follow"); !follow {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-client.Events():
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "%s %s\n", ev.Name, ev.Data)
		}
	}
}
