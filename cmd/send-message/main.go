// Command send-message posts a text message to a channel, optionally
// mentioning a user. Useful for verifying app credentials and delivery
// permissions before arming the monitor.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/anthropics/feishu-topic-monitor/feishu"
)

func main() {
	_ = godotenv.Load()

	appID := os.Getenv("FEISHU_APP_ID")
	appSecret := os.Getenv("FEISHU_APP_SECRET")
	if appID == "" || appSecret == "" {
		fmt.Fprintln(os.Stderr, "Error: FEISHU_APP_ID and FEISHU_APP_SECRET must be set")
		os.Exit(1)
	}

	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: send-message <chat_id> <message> [mention_user_id]")
		os.Exit(1)
	}
	chatID := os.Args[1]
	text := os.Args[2]
	if len(os.Args) > 3 {
		text = fmt.Sprintf("<at user_id=%q>@User</at> %s", os.Args[3], text)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	client := feishu.NewClient(appID, appSecret, log)

	if err := client.SendText(context.Background(), chatID, text); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Message sent successfully!")
}
