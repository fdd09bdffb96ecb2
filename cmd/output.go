package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"sigs.k8s.io/yaml"

	"github.com/smazurov/cmdpanel/internal/commands"
)

// Output formats accepted by -o.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ANSI sequences used when writing to a terminal.
const (
	ansiRed   = "\x1b[31m"
	ansiCyan  = "\x1b[36m"
	ansiReset = "\x1b[0m"
)

type fdProvider interface {
	Fd() uintptr
}

// isTerminal reports whether w is a terminal that understands colour.
func isTerminal(w io.Writer) bool {
	fp, ok := w.(fdProvider)
	if !ok {
		return false
	}
	fd := fp.Fd()
	if fd == ^uintptr(0) {
		return false
	}
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// commandView is the listing shape of a command.
type commandView struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Command       string  `json:"command"`
	Cwd           string  `json:"cwd"`
	OrderKey      string  `json:"order_key"`
	LastRunResult string  `json:"last_run_result"`
	LastRunCode   *string `json:"last_run_code,omitempty"`
}

func newCommandViews(cmds []commands.Command) []commandView {
	views := make([]commandView, len(cmds))
	for i, c := range cmds {
		views[i] = commandView{
			ID:            c.ID,
			Name:          c.Name,
			Command:       c.Command,
			Cwd:           c.Cwd,
			OrderKey:      c.OrderKey,
			LastRunResult: string(c.LastRunResult),
			LastRunCode:   c.LastRunCode,
		}
	}
	return views
}

func renderCommands(out io.Writer, format string, cmds []commands.Command) error {
	views := newCommandViews(cmds)

	switch strings.ToLower(format) {
	case FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case FormatYAML:
		data, err := yaml.Marshal(views)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	case FormatText, "":
		return renderCommandsText(out, views)
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func renderCommandsText(out io.Writer, views []commandView) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(out, "No commands stored.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tNAME\tLAST RUN\tCWD\tCOMMAND"); err != nil {
		return err
	}
	for _, v := range views {
		if _, err := fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			v.ID, v.Name, lastRun(v), displayOrDash(v.Cwd), v.Command); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func lastRun(v commandView) string {
	if v.LastRunCode != nil {
		return v.LastRunResult + " (" + *v.LastRunCode + ")"
	}
	return v.LastRunResult
}

func displayOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
