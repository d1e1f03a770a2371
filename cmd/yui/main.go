// Package main provides the Yui CLI.
package main

import (
	"fmt"
	"os"
)

var (
	version = "dev"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "chat":
		chatCmd(args)
	case "serve":
		serveCmd(args)
	case "exec":
		execCmd(args)
	case "map":
		mapCmd(args)
	case "version":
		fmt.Printf("yui %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Yui - AI Chat Assistant

Usage:
  yui <command> [options]

Commands:
  chat      Interactive chat session in the terminal
  serve     Start the REST API and SSE server
  exec      Run a code file in the sandbox
  map       Generate the dependency map for a project directory
  version   Print version information
  help      Show this help message

Examples:
  yui chat --user alice
  yui serve --addr :3001
  yui exec script.py --timeout 30s
  yui map ./meu-projeto

Run 'yui <command> --help' for more information on a command.`)
}

func requireAPIKey(key string) {
	if key == "" {
		fmt.Fprintln(os.Stderr, "Error: no API key configured.")
		fmt.Fprintln(os.Stderr, "Set MODEL_PROVIDER_KEY or OPENAI_API_KEY, or add model_provider_key to the config file.")
		os.Exit(1)
	}
}
