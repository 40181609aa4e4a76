package setup

import (
	"fmt"
	"io"
	"os"
	"sort"
)

// CLI provides the `setup` subcommand of the MCP server binary.
type CLI struct {
	out io.Writer
}

// NewCLI creates a new setup CLI writing to out.
func NewCLI(out io.Writer) *CLI {
	if out == nil {
		out = os.Stdout
	}
	return &CLI{out: out}
}

// Run executes the setup command based on the provided arguments.
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	switch args[0] {
	case "register":
		return c.register(args[1:])
	case "status":
		return c.showStatus(args[1:])
	case "help", "--help", "-h":
		return c.showHelp()
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n\n", args[0])
		return c.showHelp()
	}
}

// showHelp displays usage information.
func (c *CLI) showHelp() error {
	fmt.Fprint(c.out, `
MedReportGen MCP Server Setup

Usage:
  mcp-server setup <command> [options]

Commands:
  register   Register this server with the desktop MCP client
  status     Show current registration status

Options:
  --config, -c   Client config file (default: platform location)
  --binary, -b   Server binary (default: this executable)
  --base-url     Generation backend base URL
  --model        Generation model name
`)
	return nil
}

func parseFlags(args []string) Options {
	var opts Options
	for i := 0; i < len(args); i++ {
		if i+1 >= len(args) {
			break
		}
		switch args[i] {
		case "--config", "-c":
			opts.ConfigPath = args[i+1]
			i++
		case "--binary", "-b":
			opts.BinaryPath = args[i+1]
			i++
		case "--base-url":
			opts.BaseURL = args[i+1]
			i++
		case "--model":
			opts.Model = args[i+1]
			i++
		}
	}
	return opts
}

// register writes the server entry into the client config.
func (c *CLI) register(args []string) error {
	opts := parseFlags(args)

	if opts.BinaryPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to determine executable path: %w", err)
		}
		opts.BinaryPath = execPath
	}

	path, err := Register(opts)
	if err != nil {
		return fmt.Errorf("failed to register server: %w", err)
	}

	fmt.Fprintf(c.out, "Registered %q in %s\n", ServerName, path)
	fmt.Fprintf(c.out, "Server binary: %s\n", opts.BinaryPath)
	fmt.Fprintln(c.out, "Restart the MCP client to load the new configuration.")
	return nil
}

// showStatus displays the current registration status.
func (c *CLI) showStatus(args []string) error {
	status, err := GetStatus(parseFlags(args).ConfigPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Config path: %s\n", status.ConfigPath)
	if status.Registered {
		fmt.Fprintln(c.out, "Registered: yes")
		fmt.Fprintf(c.out, "Binary: %s\n", status.ServerPath)

		keys := make([]string, 0, len(status.Env))
		for k := range status.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(c.out, "  %s=%s\n", k, status.Env[k])
		}
	} else {
		fmt.Fprintln(c.out, "Registered: no")
	}

	for _, issue := range status.Issues {
		fmt.Fprintf(c.out, "Issue: %s\n", issue)
	}
	return nil
}
