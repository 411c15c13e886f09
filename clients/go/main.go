// inbox CLI - command line client for the inbox messaging API
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/eldtechnologies/inbox/clients/go/inbox"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	client := inbox.NewClient(os.Getenv("INBOX_URL"))
	ctx := context.Background()
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "register":
		need(args, 1, "inbox register <name>")
		resp, err := client.Register(ctx, args[0])
		exitOnError(err)
		fmt.Printf("Registered as: %s\n", resp.ID)

	case "who":
		need(args, 1, "inbox who <identity_id>")
		resp, err := client.Who(ctx, args[0])
		exitOnError(err)
		printJSON(resp)

	case "open":
		need(args, 1, "inbox open <identity_id>")
		conv, err := client.OpenConversation(ctx, args[0])
		exitOnError(err)
		fmt.Println(conv.ID)

	case "list":
		archived := len(args) > 0 && args[0] == "--archived"
		convs, err := client.ListConversations(ctx, archived)
		exitOnError(err)
		for _, c := range convs {
			last := ""
			if c.LastMessage != nil {
				last = truncate(c.LastMessage.Content, 40)
			}
			fmt.Printf("  %s  %-16s %3d unread  %s\n", c.ID, c.OtherName, c.UnreadCount, last)
		}

	case "read":
		need(args, 1, "inbox read <conversation_id>")
		page, err := client.ListMessages(ctx, args[0], 20, "")
		exitOnError(err)
		for _, msg := range page.Messages {
			printMessage(msg)
		}
		_, err = client.MarkRead(ctx, args[0])
		exitOnError(err)

	case "send":
		need(args, 2, "inbox send <conversation_id> <message>")
		msg, err := client.SendMessage(ctx, args[0], strings.Join(args[1:], " "), "")
		exitOnError(err)
		fmt.Printf("Sent: %s\n", msg.ID)

	case "archive", "unarchive":
		need(args, 1, "inbox "+cmd+" <conversation_id>")
		var err error
		if cmd == "archive" {
			_, err = client.Archive(ctx, args[0])
		} else {
			_, err = client.Unarchive(ctx, args[0])
		}
		exitOnError(err)

	case "unread":
		var (
			n   int
			err error
		)
		if len(args) > 0 {
			n, err = client.ConversationUnread(ctx, args[0])
		} else {
			n, err = client.TotalUnread(ctx)
		}
		exitOnError(err)
		fmt.Println(n)

	case "chat":
		need(args, 1, "inbox chat <conversation_id>")
		chat(client, args[0])

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// chat runs an interactive session: lines from stdin are sent
// optimistically while a poller keeps the timeline fresh.
func chat(client *inbox.Client, conversationID string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeline := inbox.NewTimeline()
	sender := inbox.NewSender(client, conversationID, timeline)
	poller := inbox.NewPoller(client, conversationID, timeline, 2*time.Second)
	poller.OnError = func(err error) { fmt.Fprintln(os.Stderr, "refresh failed:", err) }

	go poller.Run(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case id := <-sender.Updates():
				for _, f := range timeline.Failures() {
					if f.CorrelationID == id {
						fmt.Fprintf(os.Stderr, "not sent (%v): %s  [/retry %s]\n", f.Reason, f.Draft, id)
					}
				}
			}
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	seen := map[string]bool{}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sender.Wait()
			return
		case line, ok := <-lines:
			if !ok {
				sender.Wait()
				return
			}
			if id, found := strings.CutPrefix(line, "/retry "); found {
				if !sender.Resubmit(ctx, strings.TrimSpace(id)) {
					fmt.Fprintln(os.Stderr, "nothing to retry with that id")
				}
				continue
			}
			if strings.TrimSpace(line) != "" {
				sender.Send(ctx, line)
			}
		case <-ticker.C:
			for _, e := range timeline.Entries() {
				if c, ok := e.(inbox.Confirmed); ok && !seen[c.Message.ID] {
					seen[c.Message.ID] = true
					printMessage(c.Message)
				}
			}
		}
	}
}

func printMessage(msg inbox.Message) {
	ts := msg.CreatedAt.Local().Format("2006-01-02 15:04:05")
	fmt.Printf("[%s] %s: %s\n", ts, msg.SenderName, msg.Content)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintln(os.Stderr, "Usage:", usage)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`inbox CLI - two-party direct messaging

Usage: inbox <command> [options]

Commands:
  register <name>                 Register a new identity
  who <identity_id>               Get identity profile
  open <identity_id>              Open (or find) a conversation
  list [--archived]               List conversations
  read <conversation_id>          Show recent messages and mark them read
  send <conversation_id> <text>   Send a message
  chat <conversation_id>          Interactive session
  archive <conversation_id>       Hide a conversation
  unarchive <conversation_id>     Restore a conversation
  unread [conversation_id]        Unread count
  health                          Check server health

Environment:
  INBOX_URL      Server URL (default: http://localhost:8080)
  INBOX_CONFIG   Config directory (default: ~/.inbox)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
