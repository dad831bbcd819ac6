package main

import (
	"flag"
	"os"
	"strconv"

	"grimm.is/portgate/cmd"
	"grimm.is/portgate/internal/brand"
	"grimm.is/portgate/internal/i18n"
	"grimm.is/portgate/internal/tunnels"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list", "ls":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		configFile := configFlag(fs)
		asJSON := fs.Bool("json", false, "Print as JSON")
		asYAML := fs.Bool("yaml", false, "Print as YAML")
		fs.Parse(os.Args[2:])

		if err := cmd.RunList(*configFile, outputFormat(*asJSON, *asYAML)); err != nil {
			fail("List", err)
		}

	case "add":
		fs := flag.NewFlagSet("add", flag.ExitOnError)
		configFile := configFlag(fs)
		in := tunnelFlags(fs, "tcp")
		fs.Parse(os.Args[2:])

		if err := cmd.RunAdd(*configFile, *in); err != nil {
			fail("Add", err)
		}

	case "edit":
		// edit [options] <index|id>; omitted options keep the stored values
		fs := flag.NewFlagSet("edit", flag.ExitOnError)
		configFile := configFlag(fs)
		in := tunnelFlags(fs, "")
		fs.Parse(os.Args[2:])
		ref := requireArg(fs, "edit", "<index|id>")

		if err := cmd.RunEdit(*configFile, ref, *in); err != nil {
			fail("Edit", err)
		}

	case "delete", "rm":
		fs := flag.NewFlagSet("delete", flag.ExitOnError)
		configFile := configFlag(fs)
		fs.Parse(os.Args[2:])
		ref := requireArg(fs, "delete", "<index|id>")

		if err := cmd.RunDelete(*configFile, ref); err != nil {
			fail("Delete", err)
		}

	case "health-check":
		fs := flag.NewFlagSet("health-check", flag.ExitOnError)
		configFile := configFlag(fs)
		fs.Parse(os.Args[2:])
		value := requireArg(fs, "health-check", "<port|none>")

		if err := cmd.RunHealthCheck(*configFile, value); err != nil {
			fail("Health check", err)
		}

	case "apply":
		fs := flag.NewFlagSet("apply", flag.ExitOnError)
		configFile := configFlag(fs)
		fs.Parse(os.Args[2:])

		if err := cmd.RunApply(*configFile); err != nil {
			fail("Apply", err)
		}

	case "preview":
		fs := flag.NewFlagSet("preview", flag.ExitOnError)
		configFile := configFlag(fs)
		check := fs.Bool("check", false, "Also run the proxy syntax check")
		fs.Parse(os.Args[2:])

		if err := cmd.RunPreview(*configFile, *check); err != nil {
			fail("Preview", err)
		}

	case "diff":
		fs := flag.NewFlagSet("diff", flag.ExitOnError)
		configFile := configFlag(fs)
		fs.Parse(os.Args[2:])

		if err := cmd.RunDiff(*configFile); err != nil {
			fail("Diff", err)
		}

	case "status":
		fs := flag.NewFlagSet("status", flag.ExitOnError)
		configFile := configFlag(fs)
		asJSON := fs.Bool("json", false, "Print as JSON")
		asYAML := fs.Bool("yaml", false, "Print as YAML")
		fs.Parse(os.Args[2:])

		if err := cmd.RunStatus(*configFile, outputFormat(*asJSON, *asYAML)); err != nil {
			fail("Status", err)
		}

	case "backups":
		fs := flag.NewFlagSet("backups", flag.ExitOnError)
		configFile := configFlag(fs)
		fs.Parse(os.Args[2:])

		if err := cmd.RunBackups(*configFile); err != nil {
			fail("Backups", err)
		}

	case "restore":
		fs := flag.NewFlagSet("restore", flag.ExitOnError)
		configFile := configFlag(fs)
		fs.Parse(os.Args[2:])
		version, err := strconv.Atoi(requireArg(fs, "restore", "<version>"))
		if err != nil {
			fail("Restore", err)
		}

		if err := cmd.RunRestore(*configFile, version); err != nil {
			fail("Restore", err)
		}

	case "bot":
		// With -token/-admin the credentials are stored; otherwise the bot runs.
		fs := flag.NewFlagSet("bot", flag.ExitOnError)
		configFile := configFlag(fs)
		token := fs.String("token", "", "Telegram bot token to store")
		admin := fs.String("admin", "", "Numeric Telegram user id of the admin")
		clearCreds := fs.Bool("clear", false, "Remove stored credentials")
		fs.Parse(os.Args[2:])

		var err error
		switch {
		case *clearCreds:
			err = cmd.RunBotSetup(*configFile, "", "")
		case *token != "" || *admin != "":
			err = cmd.RunBotSetup(*configFile, *token, *admin)
		default:
			err = cmd.RunBot(*configFile)
		}
		if err != nil {
			fail("Bot", err)
		}

	case "doctor":
		fs := flag.NewFlagSet("doctor", flag.ExitOnError)
		configFile := configFlag(fs)
		asJSON := fs.Bool("json", false, "Print as JSON")
		asYAML := fs.Bool("yaml", false, "Print as YAML")
		fs.Parse(os.Args[2:])

		if err := cmd.RunDoctor(*configFile, outputFormat(*asJSON, *asYAML)); err != nil {
			fail("Doctor", err)
		}

	case "history":
		fs := flag.NewFlagSet("history", flag.ExitOnError)
		configFile := configFlag(fs)
		var opts cmd.HistoryOptions
		fs.IntVar(&opts.Limit, "n", 20, "Number of entries (0 for all)")
		fs.StringVar(&opts.Action, "action", "", "Only this operation (add, edit, delete, ...)")
		fs.StringVar(&opts.Actor, "actor", "", "Only this actor (cli, menu, bot:<id>)")
		fs.DurationVar(&opts.Since, "since", 0, "Only entries newer than this (e.g. 24h)")
		fs.BoolVar(&opts.Prune, "prune", false, "Delete entries past the retention period")
		asJSON := fs.Bool("json", false, "Print as JSON")
		asYAML := fs.Bool("yaml", false, "Print as YAML")
		fs.Parse(os.Args[2:])
		opts.Format = outputFormat(*asJSON, *asYAML)

		if err := cmd.RunHistory(*configFile, opts); err != nil {
			fail("History", err)
		}

	case "menu":
		fs := flag.NewFlagSet("menu", flag.ExitOnError)
		configFile := configFlag(fs)
		fs.Parse(os.Args[2:])

		if err := cmd.RunMenu(*configFile); err != nil {
			fail("Menu", err)
		}

	case "config":
		fs := flag.NewFlagSet("config", flag.ExitOnError)
		configFile := configFlag(fs)
		fs.Parse(os.Args[2:])

		if err := cmd.RunConfig(*configFile); err != nil {
			fail("Config", err)
		}

	case "version":
		printer.Printf("%s version %s\n", brand.Name, brand.Version)
		printer.Printf("Build: %s (%s)\n", brand.BuildTime, brand.GitCommit)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func configFlag(fs *flag.FlagSet) *string {
	configFile := fs.String("config", brand.ConfigFilePath(), "Configuration file")
	fs.StringVar(configFile, "c", brand.ConfigFilePath(), "Configuration file (short)")
	return configFile
}

func tunnelFlags(fs *flag.FlagSet, defaultMode string) *tunnels.Input {
	in := &tunnels.Input{}
	fs.StringVar(&in.Addresses, "ip", "", "Backend addresses, comma separated")
	fs.StringVar(&in.Ports, "ports", "", "Ports, comma separated")
	fs.StringVar(&in.Mode, "mode", defaultMode, "Proxy mode: tcp or http")
	return in
}

func requireArg(fs *flag.FlagSet, name, arg string) string {
	if fs.NArg() < 1 {
		printer.Fprintf(os.Stderr, "Usage: %s %s [options] %s\n", brand.BinaryName, name, arg)
		os.Exit(1)
	}
	return fs.Arg(0)
}

func outputFormat(asJSON, asYAML bool) string {
	switch {
	case asJSON:
		return "json"
	case asYAML:
		return "yaml"
	}
	return "table"
}

func fail(what string, err error) {
	printer.Fprintf(os.Stderr, "%s failed: %v\n", what, err)
	os.Exit(1)
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Tunnel Commands:
  list          Show tunnels and the health-check port (alias: ls)
                Options: -json, -yaml
  add           Add a tunnel and activate
                Options: -ip <addrs>, -ports <ports>, -mode tcp|http
  edit          Edit a tunnel by index or id; omitted options are kept
                Options: -ip <addrs>, -ports <ports>, -mode tcp|http
  delete        Delete a tunnel by index or id (alias: rm)
  health-check  Set the health-check port, or none to disable
  apply         Re-render and activate the stored tunnels

Inspection Commands:
  preview       Print the rendered %s configuration
                Options: -check
  diff          Compare the live configuration with the rendered one
  status        Show service state and whether it matches stored tunnels
                Options: -json, -yaml
  backups       List saved live configurations
  restore       Activate a saved configuration by version
  doctor        Check the proxy binary, service, state and port conflicts
                Options: -json, -yaml
  history       Show who changed what
                Options: -n <count>, -action <op>, -actor <who>, -since <dur>, -prune, -json, -yaml

Other Commands:
  bot           Run the Telegram bot
                Options: -token <token> -admin <id> (store credentials), -clear
  menu          Interactive menu
  config        Print the effective configuration
  version       Show version information

All commands accept -config (-c) <file> (default %s).

Examples:
  %s add -ip 10.0.0.1,10.0.0.2 -ports 80,443 -mode http
  %s edit -ports 8080 0
  %s health-check 8404
  %s list -json
`, brand.Name, brand.Description, brand.BinaryName, brand.ProxyName, brand.ConfigFilePath(),
		brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.BinaryName)
}
