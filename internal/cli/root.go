package cli

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/vendora/mediasync/internal/session"
)

func (a *App) getStatus() string {
	snap := a.session.CurrentSession()
	switch snap.State {
	case session.StateReady:
		return fmt.Sprintf("(%s %s)", snap.Session.CanonicalProfileID, snap.Session.ProfileType)
	case session.StateSignedOut:
		return ""
	default:
		return fmt.Sprintf("(%s)", snap.State)
	}
}

func (a *App) Root(ctx context.Context) {

	log.Println("Welcome to mediasync CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	// uploads proceed in the background while the user keeps working
	go func() {
		if err := a.coord.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.Error(ctx, "upload coordinator stopped", "error", err)
		}
	}()

	for {
		fmt.Printf("ms %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.isSignedIn() {
				fmt.Println("Available commands: post, (l)ist [status], review, sync, delete <id>, whoami, logout, exit")
			} else {
				fmt.Println("Available commands: login, exit")
			}

		case "login":
			a.login(ctx)
		case "logout":
			a.logout(ctx)
		case "whoami":
			a.whoami(ctx)
		case "post":
			a.post(ctx)
		case "l", "list":
			a.list(ctx, args)
		case "review":
			a.review(ctx)
		case "sync":
			a.sync(ctx)
		case "delete":
			if len(args) == 0 {
				fmt.Println("Usage: delete <id>")
				continue
			}
			a.deleteItem(ctx, args[0])
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Println("Unknown command:", cmd)
		}
	}
}
