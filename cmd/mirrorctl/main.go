package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/matheus3301/mailmirror/internal/session"
	"github.com/matheus3301/mailmirror/internal/tui/client"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	timeoutFlag := flag.Duration("timeout", 60*time.Second, "deadline for one-shot commands")
	flag.Usage = printUsage
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	out := printer{json: *jsonFlag}

	// config and use work without a daemon.
	switch args[0] {
	case "config":
		cmdConfig(sessionName, out)
		return
	case "use":
		cmdUse(arg(args[1:], 0, "use <session>"), out)
		return
	}

	socketPath := session.SocketPath(sessionName)
	c, err := client.New(socketPath)
	if err != nil {
		fatal(fmt.Errorf("cannot connect to daemon for session %q: %w", sessionName, err))
	}
	defer func() { _ = c.Close() }()

	// watch runs until interrupted; everything else is one-shot.
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx := sigCtx
	if args[0] != "watch" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(sigCtx, *timeoutFlag)
		defer cancel()
	}

	rest := args[1:]
	switch args[0] {
	case "status":
		cmdStatus(ctx, c, sessionName, out)
	case "threads":
		cmdThreads(ctx, c, out)
	case "sync":
		cmdSync(ctx, c, arg(rest, 0, "sync <handle>"), out)
	case "read":
		cmdRead(ctx, c, arg(rest, 0, "read <handle>"), out)
	case "leave":
		cmdLeave(ctx, c, arg(rest, 0, "leave <handle>"), out)
	case "messages":
		cmdMessages(ctx, c, arg(rest, 0, "messages <handle>"), out)
	case "watch":
		cmdWatch(ctx, c, arg(rest, 0, "watch <handle>"), out)
	case "search":
		cmdSearch(ctx, c, rest, out)
	case "check":
		cmdCheck(ctx, c, out)
	case "seed":
		cmdSeed(ctx, c, rest, out)
	case "task":
		cmdTask(ctx, c, rest, out)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: mirrorctl [--session <name>] [--json] [--timeout <d>] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                    Show daemon and provider status")
	fmt.Fprintln(os.Stderr, "  config                    Validate and show the session config")
	fmt.Fprintln(os.Stderr, "  use <session>             Make a session the default")
	fmt.Fprintln(os.Stderr, "  threads                   List mirrored threads with unread counts")
	fmt.Fprintln(os.Stderr, "  sync <handle>             Pull new messages for a thread")
	fmt.Fprintln(os.Stderr, "  read <handle>             Mark a thread read at the provider")
	fmt.Fprintln(os.Stderr, "  leave <handle>            Erase the local mirror of a thread")
	fmt.Fprintln(os.Stderr, "  messages <handle>         Print a thread's mirrored messages")
	fmt.Fprintln(os.Stderr, "  watch <handle>            Follow a thread until interrupted")
	fmt.Fprintln(os.Stderr, "  search <query>            Full-text search over mirrored mail")
	fmt.Fprintln(os.Stderr, "  check                     List threads with new provider messages")
	fmt.Fprintln(os.Stderr, "  seed <handle> [thread-id] Register a thread before any message exists")
	fmt.Fprintln(os.Stderr, "  task <handle> <title>     Link a task to a thread")
}

// arg returns rest[i] or exits with the command's usage.
func arg(rest []string, i int, usage string) string {
	if len(rest) <= i {
		fmt.Fprintln(os.Stderr, "usage: mirrorctl "+usage)
		os.Exit(1)
	}
	return rest[i]
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

type printer struct {
	json bool
}

// result prints v as JSON in --json mode, or calls text otherwise.
func (p printer) result(v any, text func()) {
	if !p.json {
		text()
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
