// twin CLI - command line client for the twin chat API
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/LorenzoRonconi00/twin/clients/go/twin"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("TWIN_URL")
	client := twin.NewClient(baseURL, os.Getenv("TWIN_TOKEN"))
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "profile":
		resp, err := client.Profile()
		exitOnError(err)
		printJSON(resp)

	case "create-server":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: twin create-server <name>")
			os.Exit(1)
		}
		resp, err := client.CreateServer(os.Args[2], "")
		exitOnError(err)
		fmt.Printf("Server %s, invite code %s\n", resp.ID, resp.InviteCode)

	case "join":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: twin join <invite-code>")
			os.Exit(1)
		}
		resp, err := client.JoinServer(os.Args[2])
		exitOnError(err)
		printJSON(resp)

	case "dm":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: twin dm <server-id> <member-id>")
			os.Exit(1)
		}
		resp, err := client.OpenConversation(os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Conversation: %s\n", resp.ID)

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: twin send <conversation-id> <message>")
			os.Exit(1)
		}
		resp, err := client.SendDirectMessage(os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Sent: %s\n", resp.ID)

	case "read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: twin read <conversation-id> [cursor]")
			os.Exit(1)
		}
		cursor := ""
		if len(os.Args) > 3 {
			cursor = os.Args[3]
		}
		page, err := client.ListDirectMessages(os.Args[2], cursor)
		exitOnError(err)
		for _, msg := range page.Items {
			printMessage(msg)
		}
		if page.NextCursor != "" {
			fmt.Printf("-- more: twin read %s %s\n", os.Args[2], page.NextCursor)
		}

	case "watch":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: twin watch <conversation-id>")
			os.Exit(1)
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w := &twin.Watcher{
			Client:         client,
			Subscriber:     client.Subscriber(),
			ConversationID: os.Args[2],
			OnMessage:      printMessage,
			OnState:        func(badge string) { fmt.Printf("== %s\n", badge) },
		}
		_ = w.Run(ctx)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`twin CLI

Usage: twin <command> [options]

Commands:
  profile                         Show (and create) your profile
  create-server <name>            Create a server
  join <invite-code>              Join a server
  dm <server-id> <member-id>      Open a conversation with a member
  send <conversation-id> <text>   Send a direct message
  read <conversation-id> [cursor] Read a batch of direct messages
  watch <conversation-id>         Follow a conversation live
  health                          Check server health

Environment:
  TWIN_URL      Server URL (default: http://localhost:8080)
  TWIN_TOKEN    Session token (see cmd/sign)`)
}

func printMessage(msg twin.DirectMessage) {
	from := msg.MemberID
	if msg.Member != nil && msg.Member.Profile != nil {
		from = msg.Member.Profile.Name
	}
	ts := msg.CreatedAt.Format("2006-01-02 15:04:05")
	fmt.Printf("[%s] %s: %s\n", ts, from, msg.Content)
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
