package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/autonoplus/yui/serve"
)

// serveCmd starts the REST API and SSE server.
func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":3001", "HTTP listen address")
	config := fs.String("config", "", "Config file path")

	fs.Usage = func() {
		fmt.Println(`Usage: yui serve [options]

Start the REST API and SSE event stream for the chat pipeline.

Options:`)
		fs.PrintDefaults()
		fmt.Println(`
Examples:
  yui serve
  yui serve --addr :8080`)
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

	srv := serve.New(a.pipeline, a.store, a.broker, serve.Config{
		Addr:          *addr,
		UseAsyncQueue: cfg.UseAsyncQueue,
		DownloadDir:   cfg.DownloadDir,
	}).WithQueue(a.queue).WithUsage(a.usage).WithGovernor(a.governor)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("API: http://localhost%s/api/chats\n", *addr)
	if err := srv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
