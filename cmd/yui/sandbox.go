package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yui "github.com/autonoplus/yui"
	"github.com/autonoplus/yui/guard"
	"github.com/autonoplus/yui/sandbox"
)

// execCmd runs a code file in the sandbox.
func execCmd(args []string) {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	lang := fs.String("lang", "", "Language: python or javascript (default: from extension)")
	timeout := fs.Duration("timeout", 0, "Wall-clock limit (max 5m)")
	ram := fs.Int("ram", 0, "RAM cap in MB (minimum 128)")
	container := fs.Bool("container", false, "Run inside the Docker sandbox when available")
	config := fs.String("config", "", "Config file path")

	fs.Usage = func() {
		fmt.Println(`Usage: yui exec <file> [options]

Run a code file in the isolated sandbox and print its output.

Options:`)
		fs.PrintDefaults()
		fmt.Println(`
Examples:
  yui exec script.py
  yui exec script.js --timeout 30s
  yui exec train.py --container --ram 512`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: no file specified")
		fs.Usage()
		os.Exit(1)
	}

	file := fs.Arg(0)
	code, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", file, err)
		os.Exit(1)
	}

	language := *lang
	if language == "" {
		switch strings.ToLower(filepath.Ext(file)) {
		case ".py":
			language = "python"
		case ".js", ".mjs":
			language = "javascript"
		default:
			fmt.Fprintf(os.Stderr, "Error: cannot infer language from %s, use --lang\n", file)
			os.Exit(1)
		}
	}

	req := sandbox.RunRequest{
		Code:     string(code),
		Lang:     language,
		Timeout:  *timeout,
		Explicit: *timeout > 0,
		RAMCapMB: *ram,
	}

	cfg := loadConfig(*config)
	gov := guard.NewGovernor(guard.NewSampler(2*time.Second),
		cfg.EnergyMax, cfg.EnergyLowThreshold, cfg.EnergyCriticalThreshold)
	admit := func() (bool, string) {
		d := gov.AllowHeavyAgent()
		return d.Allow, d.Reason
	}

	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Minute)
	defer cancel()

	var result sandbox.RunResult
	ran := false
	if *container {
		ce, err := sandbox.NewContainerExecutor(yui.SandboxPath())
		if err == nil && ce.IsAvailable() {
			defer ce.Close()
			result = ce.WithAdmission(admit).Run(ctx, req)
			ran = true
		} else {
			fmt.Fprintln(os.Stderr, "Docker unavailable, falling back to subprocess sandbox")
		}
	}
	if !ran {
		result = sandbox.NewExecutor(yui.SandboxPath()).WithAdmission(admit).Run(ctx, req)
	}

	if result.Stdout != "" {
		fmt.Print(result.Stdout)
	}
	if result.Stderr != "" {
		fmt.Fprint(os.Stderr, result.Stderr)
	}
	if result.Feedback != "" {
		fmt.Fprintln(os.Stderr, result.Feedback)
	}
	if result.TimedOut {
		fmt.Fprintln(os.Stderr, "Execution timed out")
	}
	os.Exit(result.ExitCode)
}

// mapCmd generates the dependency map for a project directory.
func mapCmd(args []string) {
	fs := flag.NewFlagSet("map", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println(`Usage: yui map [dir]

Walk a project directory and write its dependency map to .yui_map.json.
Defaults to the sandbox workspace.`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	root := yui.SandboxPath()
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}

	pm, err := sandbox.NewMapper(root).Generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Mapped %s: %d files, %d with dependencies\n",
		pm.Root, pm.Stats.TotalFiles, pm.Stats.TotalWithDeps)
}
