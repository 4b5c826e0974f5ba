// Command demo is a terminal chat client for a running relay.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"converse-relay/internal/client"
	"converse-relay/internal/config"
	"converse-relay/internal/infra/logging"
)

func main() {
	addr := flag.String("addr", "http://localhost:3000", "relay base URL")
	user := flag.String("user", "user123", "user id to chat as")
	timeout := flag.Duration("timeout", 2*time.Minute, "max wait per message")
	verbose := flag.Bool("v", false, "log polling progress")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "trace"
	}
	log := logging.New(config.LogConfig{Level: level, Format: "console"}, false)
	c := client.New(*addr, client.WithLogger(log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("chatting with %s as %q (Ctrl+D to quit)\n", *addr, *user)
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() || ctx.Err() != nil {
			fmt.Println()
			return
		}
		msg := strings.TrimSpace(in.Text())
		if msg == "" {
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, *timeout)
		res, err := c.Ask(turnCtx, *user, msg)
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("message failed")
			continue
		}
		fmt.Println(client.Reply(res))
	}
}
