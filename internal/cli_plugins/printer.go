package cliplugins

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"deskd/internal/watcher"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// eventPrinter writes notifier signals either as colored lines for a
// terminal or as JSON lines for pipes.
type eventPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	json bool
	enc  *json.Encoder
}

type printedLine struct {
	Signal string    `json:"signal"`
	Path   string    `json:"path,omitempty"`
	Error  string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
}

// newEventPrinter picks JSON output unless out is a terminal.
func newEventPrinter(out io.Writer, forceJSON bool) *eventPrinter {
	asJSON := forceJSON
	if !asJSON {
		f, ok := out.(*os.File)
		asJSON = !ok || !term.IsTerminal(int(f.Fd()))
	}
	return &eventPrinter{out: out, json: asJSON, enc: json.NewEncoder(out)}
}

func (p *eventPrinter) event(ev watcher.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		_ = p.enc.Encode(printedLine{Signal: string(ev.Kind.Signal()), Path: ev.Path, Time: ev.ObservedAt})
		return
	}

	ts := ev.ObservedAt.Local().Format("15:04:05.000")
	switch ev.Kind {
	case watcher.KindCreated:
		fmt.Fprintf(p.out, "%s %s %s\n", ts, color.GreenString("+"), ev.Path)
	case watcher.KindModified:
		fmt.Fprintf(p.out, "%s %s %s\n", ts, color.YellowString("~"), ev.Path)
	case watcher.KindRemoved:
		fmt.Fprintf(p.out, "%s %s %s\n", ts, color.RedString("-"), ev.Path)
	}
}

func (p *eventPrinter) signal(sig watcher.Signal, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.json {
		line := printedLine{Signal: string(sig), Time: now.UTC()}
		if sig == watcher.SignalError {
			line.Error = detail
		} else {
			line.Path = detail
		}
		_ = p.enc.Encode(line)
		return
	}

	ts := now.Format("15:04:05.000")
	switch sig {
	case watcher.SignalError:
		fmt.Fprintf(p.out, "%s %s %s\n", ts, color.RedString("error"), detail)
	default:
		fmt.Fprintf(p.out, "%s %s %s\n", ts, color.CyanString(string(sig)), detail)
	}
}
