package command

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

type TablesCommand struct{}

func (c *TablesCommand) Help() string {
	helpText := `
Usage: jetutil tables [options] <database>

Options:

	-config=""	Configuration file
`

	return strings.TrimSpace(helpText)
}

func (c *TablesCommand) Synopsis() string {
	return "Lists the tables in a database's catalog"
}

func (c *TablesCommand) Run(args []string) int {
	var configPath string

	cmdFlags := flag.NewFlagSet("tables", flag.ContinueOnError)
	cmdFlags.StringVar(&configPath, "config", "", "config file")
	if err := cmdFlags.Parse(args); err != nil {
		return 1
	}
	if cmdFlags.NArg() != 1 {
		_, _ = fmt.Fprintln(os.Stderr, c.Help())
		return 1
	}

	cfg, chunked, err := loadConfig(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		return 1
	}

	db, f, err := openDatabase(cmdFlags.Arg(0), cfg, chunked)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		return 1
	}
	defer f.Close()
	defer db.Close()

	names, err := db.TableNames()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		return 1
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return 0
}
