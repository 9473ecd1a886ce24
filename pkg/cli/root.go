package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command writing to out; nil means stdout
func NewRootCommand(out io.Writer) *Command {
	if out == nil {
		out = os.Stdout
	}

	root := &Command{
		Name:        "ruckstats",
		Description: "ruckstats - training analytics for rucking sessions",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("ruckstats", flag.ContinueOnError),
	}
	root.Flags.SetOutput(out)

	for _, cmd := range []*Command{
		newSummaryCommand(out),
		newRecordsCommand(out),
		newWeeklyCommand(out),
		newCompareCommand(out),
		newDetailedCommand(out),
		newChartCommand(out),
		newServeCommand(out),
	} {
		cmd.Flags.SetOutput(out)
		root.Subcommands[cmd.Name] = cmd
	}

	root.Run = func(args []string) error {
		if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
			root.usage(out)
			return nil
		}
		if sub, ok := root.Subcommands[args[0]]; ok {
			return sub.Run(args[1:])
		}
		return fmt.Errorf("unknown command: %s", args[0])
	}
	return root
}

// Execute runs the command with args, not including the program name
func (c *Command) Execute(args []string) error {
	return c.Run(args)
}

// usage prints the command usage
func (c *Command) usage(out io.Writer) {
	fmt.Fprintf(out, "Usage: %s <command> [flags]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
}
