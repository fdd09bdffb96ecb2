package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/cmdpanel/internal/commands"
	"github.com/smazurov/cmdpanel/internal/events"
)

const (
	// exitInterrupted follows the shell convention for SIGINT.
	exitInterrupted = 130
	pollInterval    = 250 * time.Millisecond
	closeTimeout    = 30 * time.Second
)

// CreateExecCmd creates the exec command.
func CreateExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <id|name>",
		Short: "Run a stored command in the foreground",
		Long: `Runs a stored command and follows its log until it stops. ` +
			`Ctrl-C kills the command the same way the API does. ` +
			`The exit status is the command's own exit code.`,
		Args: cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			initCLILogging(opts)
			os.Exit(execCommand(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, args[0]))
		}),
	}
}

func execCommand(ctx context.Context, stdout, stderr io.Writer, opts *Options, ref string) int {
	bus := events.New()
	rt, err := NewRuntime(opts, events.NewNotifier(bus))
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			fmt.Fprintln(stderr, "Error:", err)
		}
	}()

	target, err := resolveCommand(ctx, rt.Service, ref)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	// Changes only wake the loop; dropped ones are covered by the ticker.
	changes := events.NewFeed(64)
	events.Follow[events.CommandLogUpdatedEvent](bus, changes)
	events.Follow[events.CommandUpdatedEvent](bus, changes)
	defer changes.Close()

	f := &follower{
		svc:     rt.Service,
		id:      target.ID,
		printer: newLinePrinter(stdout, stderr),
	}
	if err := f.skipExisting(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Service.RunCommand(ctx, target.ID); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	interrupted := sigCtx.Done()
	for {
		if err := f.follow(ctx); err != nil {
			fmt.Fprintln(stderr, "Error:", err)
		}
		if rt.Service.Status(target.ID) == commands.StatusStopped {
			break
		}

		select {
		case <-changes.C:
		case <-ticker.C:
		case <-interrupted:
			interrupted = nil
			go func() {
				if err := rt.Service.KillCommand(context.Background(), target.ID); err != nil {
					fmt.Fprintln(stderr, "Error:", err)
				}
			}()
		}
	}

	if err := f.follow(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
	}

	final, err := rt.Service.GetCommand(ctx, target.ID)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return exitStatus(final)
}

// exitStatus maps the last run result of cmd to a process exit status.
func exitStatus(cmd *commands.Command) int {
	switch cmd.LastRunResult {
	case commands.ResultExit:
		if cmd.LastRunCode == nil {
			return 1
		}
		code, err := strconv.Atoi(*cmd.LastRunCode)
		if err != nil || code < 0 || code > 255 {
			return 1
		}
		return code
	case commands.ResultKilled:
		return exitInterrupted
	default:
		return 1
	}
}

// follower prints log lines of one command as they are stored.
type follower struct {
	svc     *commands.Service
	id      int64
	cursor  int64
	printer *linePrinter
}

// skipExisting moves the cursor past lines from earlier runs.
func (f *follower) skipExisting(ctx context.Context) error {
	lines, err := f.svc.LogLines(ctx, f.id, commands.LogQuery{Limit: 1})
	if err != nil {
		return err
	}
	if len(lines) > 0 {
		f.cursor = lines[len(lines)-1].ID
	}
	return nil
}

// follow prints every line stored after the cursor.
func (f *follower) follow(ctx context.Context) error {
	if f.cursor == 0 {
		return f.backfill(ctx)
	}

	for {
		lines, err := f.svc.LogLines(ctx, f.id, commands.LogQuery{After: f.cursor, Limit: commands.MaxPageSize})
		if err != nil {
			return err
		}
		f.emit(lines)
		if len(lines) < commands.MaxPageSize {
			return nil
		}
	}
}

// backfill handles an empty starting log, where there is no cursor to page
// forward from: the whole log is read newest page first and printed in order.
func (f *follower) backfill(ctx context.Context) error {
	var pages [][]commands.LogLine
	var before int64
	for {
		lines, err := f.svc.LogLines(ctx, f.id, commands.LogQuery{Before: before, Limit: commands.MaxPageSize})
		if err != nil {
			return err
		}
		if len(lines) > 0 {
			pages = append(pages, lines)
			before = lines[0].ID
		}
		if len(lines) < commands.MaxPageSize {
			break
		}
	}

	slices.Reverse(pages)
	for _, page := range pages {
		f.emit(page)
	}
	return nil
}

func (f *follower) emit(lines []commands.LogLine) {
	for _, line := range lines {
		f.printer.print(line)
		f.cursor = line.ID
	}
}

// linePrinter writes child stdout to stdout and everything else to stderr,
// coloured when stderr is a terminal.
type linePrinter struct {
	stdout io.Writer
	stderr io.Writer
	color  bool
}

func newLinePrinter(stdout, stderr io.Writer) *linePrinter {
	return &linePrinter{stdout: stdout, stderr: stderr, color: isTerminal(stderr)}
}

func (p *linePrinter) print(line commands.LogLine) {
	switch line.Source {
	case commands.SourceStdout:
		fmt.Fprintln(p.stdout, line.Text)
	case commands.SourceStderr:
		p.printColored(ansiRed, line.Text)
	default:
		p.printColored(ansiCyan, line.Text)
	}
}

func (p *linePrinter) printColored(color, text string) {
	if p.color {
		fmt.Fprintln(p.stderr, color+text+ansiReset)
		return
	}
	fmt.Fprintln(p.stderr, text)
}
