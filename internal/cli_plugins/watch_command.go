package cliplugins

import (
	"context"
	"fmt"
	"path/filepath"

	"deskd/internal/watcher"

	"github.com/spf13/cobra"
)

type WatchCommand struct {
	cmd *cobra.Command
	app *AppContext
}

func NewWatchCommand(app *AppContext) *WatchCommand {
	return &WatchCommand{app: app}
}

func (w *WatchCommand) Meta() *cobra.Command {
	if w.cmd != nil {
		return w.cmd
	}
	w.cmd = &cobra.Command{
		Use:   "watch [path]",
		Short: "Print file changes under a directory",
		Long: "Watches a directory tree and prints every add, change and unlink. " +
			"Output is colored on a terminal and JSON lines otherwise.",
		Args: cobra.MaximumNArgs(1),
	}
	w.cmd.Flags().StringSliceP("ignore", "i", nil, "extra ignore patterns (repeatable)")
	w.cmd.Flags().Bool("polling", false, "poll instead of using native notifications")
	w.cmd.Flags().Bool("initial", false, "report files that already exist")
	w.cmd.Flags().Bool("once", false, "exit after the initial scan")
	w.cmd.Flags().Bool("json", false, "always print JSON lines")
	return w.cmd
}

func (w *WatchCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	cfg, log, err := w.app.Load()
	if err != nil {
		return err
	}

	wc := WatcherConfig(cfg.Watch, log)
	if len(args) > 0 {
		wc.RootPath = args[0]
	}
	if wc.RootPath == "" {
		return fmt.Errorf("path is required (argument or watch.root)")
	}
	if wc.RootPath, err = filepath.Abs(wc.RootPath); err != nil {
		return err
	}

	flags := cmd.Flags()
	if extra, _ := flags.GetStringSlice("ignore"); len(extra) > 0 {
		wc.IgnorePatterns = append(append([]string(nil), wc.IgnorePatterns...), extra...)
	}
	if flags.Changed("polling") {
		wc.UsePolling, _ = flags.GetBool("polling")
	}
	if flags.Changed("initial") {
		initial, _ := flags.GetBool("initial")
		wc.IgnoreInitial = watcher.Bool(!initial)
	}
	if once, _ := flags.GetBool("once"); once {
		wc.Persistent = false
	}
	forceJSON, _ := flags.GetBool("json")

	n, err := watcher.NewNotifier(wc)
	if err != nil {
		return err
	}
	return runWatch(ctx, n, newEventPrinter(cmd.OutOrStdout(), forceJSON))
}

// runWatch prints n's signals until ctx is done, the watch fails, or, for a
// non-persistent notifier, the initial scan completes.
func runWatch(ctx context.Context, n *watcher.Notifier, p *eventPrinter) error {
	ready := make(chan struct{})
	var failure error

	n.OnFile(p.event)
	n.OnReady(func() {
		p.signal(watcher.SignalReady, n.WatchPath())
		close(ready)
	})
	n.OnStopped(func() { p.signal(watcher.SignalStopped, n.WatchPath()) })
	n.OnError(func(err error) {
		p.signal(watcher.SignalError, err.Error())
		if !n.Running() {
			failure = err
		}
	})

	n.Start()
	done := n.Done()

	select {
	case <-ready:
	case <-done:
		return failure
	case <-ctx.Done():
	}

	if n.Persistent() && ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case <-done:
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return n.Stop(stopCtx)
}
