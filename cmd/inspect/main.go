// Command inspect dumps the channels, users and recent messages the app
// credentials can see. Run it once before writing monitor.yaml so the
// channel names in the config match what the workspace actually exposes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/anthropics/feishu-topic-monitor/feishu"
)

func main() {
	messages := flag.Int("messages", 5, "recent messages to print per channel (0 disables)")
	users := flag.Bool("users", false, "also list workspace users")
	flag.Parse()

	_ = godotenv.Load()

	appID := os.Getenv("FEISHU_APP_ID")
	appSecret := os.Getenv("FEISHU_APP_SECRET")
	if appID == "" || appSecret == "" {
		fmt.Fprintln(os.Stderr, "Error: FEISHU_APP_ID and FEISHU_APP_SECRET must be set")
		os.Exit(1)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	client := feishu.NewClient(appID, appSecret, log)
	ctx := context.Background()

	chats, err := client.ListChats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list chats: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%d channel(s) visible:\n", len(chats))
	for _, chat := range chats {
		// The list endpoint does not carry the mode; resolve it per chat.
		mode := "?"
		if info, err := client.GetChatInfo(ctx, chat.ChatID); err == nil && info.Mode != "" {
			mode = info.Mode
		}
		fmt.Printf("  %-40s %-6s %s\n", chat.ChatID, mode, chat.Name)
		if *messages <= 0 {
			continue
		}
		history, err := client.GetChatHistory(ctx, chat.ChatID, *messages)
		if err != nil {
			fmt.Printf("    (history unavailable: %v)\n", err)
			continue
		}
		for _, m := range history {
			sender := ""
			if m.Sender != nil {
				sender = m.Sender.SenderID
			}
			fmt.Printf("    [%s] %s %s: %s\n", m.CreateTime, m.MsgID, sender, m.Content)
		}
	}

	if *users {
		list, err := client.ListUsers(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list users: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\n%d user(s) visible:\n", len(list))
		for _, u := range list {
			role := ""
			if u.IsTenantManager {
				role = " (admin)"
			}
			fmt.Printf("  %-40s %s%s\n", u.OpenID, u.Name, role)
		}
	}
}
