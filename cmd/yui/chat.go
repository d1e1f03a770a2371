package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/autonoplus/yui/pipeline"
)

// chatCmd runs an interactive chat session against the pipeline.
func chatCmd(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	user := fs.String("user", "local", "User id for this session")
	chatID := fs.String("chat", "", "Existing chat id to resume")
	model := fs.String("model", "auto", "Persona: yui, heathcliff or auto")
	config := fs.String("config", "", "Config file path")

	fs.Usage = func() {
		fmt.Println(`Usage: yui chat [message] [options]

Start an interactive chat session in the terminal, or send a single
message and print the reply.

Options:`)
		fs.PrintDefaults()
		fmt.Println(`
Examples:
  yui chat
  yui chat "analise este código" --model heathcliff
  yui chat --chat 4f2a... (resume a chat)`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig(*config)
	requireAPIKey(cfg.ModelProviderKey)

	a, err := buildApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx := context.Background()

	id := *chatID
	if id == "" {
		chat, err := a.store.CreateChat(ctx, *user, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating chat: %v\n", err)
			os.Exit(1)
		}
		id = chat.ID
	}

	ask := func(message string) {
		err := a.pipeline.Process(ctx, pipeline.Request{
			UserID:  *user,
			ChatID:  id,
			Message: message,
			Model:   *model,
		}, func(chunk string) bool {
			switch chunk {
			case pipeline.StatusThinking:
			case pipeline.StatusDone:
				fmt.Println()
			default:
				fmt.Print(chunk)
			}
			return true
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	// One-shot mode: send the argument and exit.
	if fs.NArg() > 0 {
		ask(strings.Join(fs.Args(), " "))
		return
	}

	fmt.Printf("Yui chat (user=%s, chat=%s)\n", *user, id)
	fmt.Println("Type /quit to exit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			fmt.Println("Até logo!")
			return
		}

		ask(line)
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}
