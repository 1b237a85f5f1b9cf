package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/mailmirror/internal/config"
	"github.com/matheus3301/mailmirror/internal/lock"
	"github.com/matheus3301/mailmirror/internal/rpc"
	"github.com/matheus3301/mailmirror/internal/session"
	"github.com/matheus3301/mailmirror/internal/tui/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func cmdStatus(ctx context.Context, c *client.Client, sessionName string, out printer) {
	resp, err := c.Session.GetStatus(ctx, &rpc.Empty{})
	if err != nil {
		if owner, held := lock.Holder(session.LockPath(sessionName)); held {
			fatal(fmt.Errorf("daemon (pid %d) holds session %q but is not answering: %w", owner.PID, sessionName, err))
		}
		fatal(fmt.Errorf("daemon not running for session %q", sessionName))
	}
	out.result(resp, func() {
		fmt.Printf("Session:  %s\n", resp.Session)
		fmt.Printf("Provider: %s\n", resp.Provider)
		fmt.Printf("Status:   %s\n", resp.Status)
		if resp.LastError != "" {
			fmt.Printf("Error:    %s\n", resp.LastError)
		}
		fmt.Printf("Threads:  %d\n", resp.ThreadCount)
		fmt.Printf("Messages: %d\n", resp.MessageCount)
		fmt.Printf("Uptime:   %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
	})
}

func cmdConfig(sessionName string, out printer) {
	path := session.SessionConfigPath(sessionName)
	cfg, err := config.LoadSession(path)
	if err != nil {
		fatal(err)
	}
	shown := *cfg
	shown.Provider.Gmail.ClientSecret = redact(shown.Provider.Gmail.ClientSecret)
	shown.Provider.Outlook.AccessToken = redact(shown.Provider.Outlook.AccessToken)
	shown.Auth.HS256Secret = redact(shown.Auth.HS256Secret)
	out.result(shown, func() {
		fmt.Printf("Config:   %s\n", path)
		fmt.Printf("Account:  %s (%s)\n", cfg.Account.Email, cfg.Account.UserID)
		fmt.Printf("Provider: %s (%.1f req/s, burst %d)\n", cfg.Provider.Kind, cfg.Provider.RatePerSecond, cfg.Provider.Burst)
		fmt.Printf("Poll:     every %s, %d at a time\n", cfg.Sync.PollInterval, cfg.Sync.Concurrency)
		if cfg.HTTP.Addr != "" {
			fmt.Printf("HTTP:     %s\n", cfg.HTTP.Addr)
		}
		if cfg.NATS.URL != "" {
			fmt.Printf("NATS:     %s (stream %s)\n", cfg.NATS.URL, cfg.NATS.Stream)
		}
	})
}

func cmdUse(name string, out printer) {
	if err := session.ValidateName(name); err != nil {
		fatal(err)
	}
	path := session.ConfigPath()
	cfg, err := config.LoadGlobal(path)
	if err != nil {
		fatal(err)
	}
	cfg.DefaultSession = name
	if err := config.SaveGlobal(path, cfg); err != nil {
		fatal(err)
	}
	out.result(cfg, func() {
		fmt.Printf("Default session: %s\n", name)
	})
}

func cmdThreads(ctx context.Context, c *client.Client, out printer) {
	resp, err := c.Threads.ListThreads(ctx, &rpc.Empty{})
	if err != nil {
		fatal(err)
	}
	out.result(resp, func() {
		if len(resp.Threads) == 0 {
			fmt.Println("No threads mirrored.")
			return
		}
		for _, t := range resp.Threads {
			marker := " "
			if t.UnreadCount > 0 {
				marker = "*"
			}
			task := ""
			if t.HasTask {
				task = " [task]"
			}
			fmt.Printf("%s %-24s %-40.40s %-28.28s %4d msgs %3d unread %s%s\n",
				marker, t.Handle, t.Subject, t.Counterpart, t.MessageCount, t.UnreadCount, stamp(t.LastMessageAtMs), task)
		}
	})
}

func cmdSync(ctx context.Context, c *client.Client, handle string, out printer) {
	resp, err := c.Threads.Sync(ctx, &rpc.HandleRequest{Handle: handle})
	if err != nil {
		fatal(err)
	}
	out.result(resp, func() {
		fmt.Printf("Synced %d new message(s); %d fetched from the provider.\n", resp.Synced, resp.Total)
	})
}

func cmdRead(ctx context.Context, c *client.Client, handle string, out printer) {
	resp, err := c.Threads.MarkRead(ctx, &rpc.HandleRequest{Handle: handle})
	if err != nil {
		fatal(err)
	}
	out.result(resp, func() { fmt.Println("Marked read.") })
}

func cmdLeave(ctx context.Context, c *client.Client, handle string, out printer) {
	resp, err := c.Threads.Erase(ctx, &rpc.HandleRequest{Handle: handle})
	if err != nil {
		fatal(err)
	}
	out.result(resp, func() { fmt.Printf("Removed %d mirrored message(s).\n", resp.Deleted) })
}

func cmdMessages(ctx context.Context, c *client.Client, handle string, out printer) {
	resp, err := c.Threads.Messages(ctx, &rpc.HandleRequest{Handle: handle})
	if err != nil {
		fatal(err)
	}
	out.result(resp, func() {
		for _, m := range resp.Messages {
			printMessage(m)
		}
	})
}

// cmdWatch prints each message once, as frames bring new ones in.
func cmdWatch(ctx context.Context, c *client.Client, handle string, out printer) {
	stream, err := c.Threads.Subscribe(ctx, &rpc.HandleRequest{Handle: handle})
	if err != nil {
		fatal(err)
	}
	seen := make(map[string]bool)
	for {
		frame, err := stream.Recv()
		if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
			return
		}
		if err != nil {
			fatal(err)
		}
		if out.json {
			out.result(frame, nil)
			continue
		}
		for _, m := range frame.Messages {
			if seen[m.ExternalMessageID] {
				continue
			}
			seen[m.ExternalMessageID] = true
			printMessage(m)
		}
	}
}

func cmdSearch(ctx context.Context, c *client.Client, rest []string, out printer) {
	query := strings.Join(rest, " ")
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(os.Stderr, "usage: mirrorctl search <query>")
		os.Exit(1)
	}
	resp, err := c.Threads.Search(ctx, &rpc.SearchRequest{Query: query, Limit: 50})
	if err != nil {
		fatal(err)
	}
	out.result(resp, func() {
		if len(resp.Hits) == 0 {
			fmt.Println("No results.")
			return
		}
		for _, h := range resp.Hits {
			fmt.Printf("%-24s %s  %s\n", h.Message.Handle, stamp(h.Message.SentAtMs), h.Snippet)
		}
	})
}

func cmdCheck(ctx context.Context, c *client.Client, out printer) {
	resp, err := c.Threads.CheckUpdates(ctx, &rpc.Empty{})
	if err != nil {
		fatal(err)
	}
	out.result(resp, func() {
		if len(resp.Handles) == 0 {
			fmt.Printf("No new messages across %d thread(s).\n", resp.TotalThreads)
			return
		}
		fmt.Printf("%d of %d thread(s) have new messages:\n", len(resp.Handles), resp.TotalThreads)
		for _, h := range resp.Handles {
			fmt.Println("  " + h)
		}
	})
}

func cmdSeed(ctx context.Context, c *client.Client, rest []string, out printer) {
	req := &rpc.SeedOriginRequest{Handle: arg(rest, 0, "seed <handle> [thread-id]")}
	if len(rest) > 1 {
		req.ExternalThreadID = rest[1]
	}
	resp, err := c.Threads.SeedOrigin(ctx, req)
	if err != nil {
		fatal(err)
	}
	out.result(resp, func() {
		fmt.Printf("Seeded %s; synced %d of %d message(s).\n", req.Handle, resp.Synced, resp.Total)
	})
}

func cmdTask(ctx context.Context, c *client.Client, rest []string, out printer) {
	handle := arg(rest, 0, "task <handle> <title>")
	title := strings.Join(rest[1:], " ")
	if strings.TrimSpace(title) == "" {
		fmt.Fprintln(os.Stderr, "usage: mirrorctl task <handle> <title>")
		os.Exit(1)
	}
	resp, err := c.Threads.LinkTask(ctx, &rpc.LinkTaskRequest{Handle: handle, Title: title})
	if err != nil {
		fatal(err)
	}
	out.result(resp, func() { fmt.Printf("Linked task %s.\n", resp.TaskID) })
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func printMessage(m rpc.Message) {
	fmt.Printf("--- %s  %s\n", stamp(m.SentAtMs), m.Sender)
	if m.Subject != "" {
		fmt.Printf("Subject: %s\n", m.Subject)
	}
	fmt.Println(strings.TrimSpace(strings.ReplaceAll(m.Body, "\r\n", "\n")))
	fmt.Println()
}

func stamp(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}
