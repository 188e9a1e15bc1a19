package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vango-go/vai-companion/pkg/companion/bridge"
	"github.com/vango-go/vai-companion/pkg/companion/chat"
	"github.com/vango-go/vai-companion/pkg/companion/session"
	"github.com/vango-go/vai-companion/pkg/companion/transcript"
)

const consoleHelp = "Commands: /start to talk, /stop to hang up, /quit to exit. Anything else is sent as a text message."

// runConsole reads commands and prompts line by line until EOF, /quit or ctx
// is done.
func runConsole(ctx context.Context, in io.Reader, out io.Writer, ctrl bridge.Controller, asker bridge.Asker) {
	fmt.Fprintln(out, consoleHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !handleConsoleLine(ctx, out, line, ctrl, asker) {
				return
			}
		}
	}
}

// handleConsoleLine runs one line of input. It returns false on /quit.
func handleConsoleLine(ctx context.Context, out io.Writer, line string, ctrl bridge.Controller, asker bridge.Asker) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return true
	case "/quit", "/exit":
		return false
	case "/help":
		fmt.Fprintln(out, consoleHelp)
	case "/start":
		if err := ctrl.Start(ctx); errors.Is(err, session.ErrAlreadyStarted) {
			fmt.Fprintln(out, "! already talking")
		}
	case "/stop":
		ctrl.Stop()
	default:
		if _, err := asker.Ask(ctx, line); err != nil {
			if errors.Is(err, chat.ErrEmptyPrompt) {
				return true
			}
			fmt.Fprintln(out, "! Sorry, I couldn't get a reply. Please try again.")
		}
	}
	return true
}

func printEvent(out io.Writer, ev session.Event) {
	switch e := ev.(type) {
	case *session.StateChangedEvent:
		fmt.Fprintf(out, "[%s]\n", e.To)
	case *session.ErrorEvent:
		fmt.Fprintf(out, "! %s\n", e.Message)
	case *session.AudioDegradedEvent:
		fmt.Fprintf(out, "! %s\n", e.Message)
	case *session.TranscriptEvent:
		for _, entry := range e.Entries {
			speaker := "you"
			if entry.Role == transcript.RoleModel {
				speaker = "companion"
			}
			fmt.Fprintf(out, "%s: %s\n", speaker, entry.Text)
		}
	}
}
