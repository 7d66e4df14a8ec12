package command

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

type ScanCommand struct {
	ShutDownCh <-chan struct{}
}

func (c *ScanCommand) Help() string {
	helpText := `
Usage: jetutil scan [options] <database> <table>

Options:

	-config=""	Configuration file
	-columns=""	Comma-separated list of columns to print (default all)
`

	return strings.TrimSpace(helpText)
}

func (c *ScanCommand) Synopsis() string {
	return "Dumps a table's rows via a forward table scan"
}

func (c *ScanCommand) Run(args []string) int {
	var configPath string
	var columnList string

	cmdFlags := flag.NewFlagSet("scan", flag.ContinueOnError)
	cmdFlags.StringVar(&configPath, "config", "", "config file")
	cmdFlags.StringVar(&columnList, "columns", "", "columns to print")
	if err := cmdFlags.Parse(args); err != nil {
		return 1
	}
	if cmdFlags.NArg() != 2 {
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

	t, err := db.Table(cmdFlags.Arg(1))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		return 1
	}

	var columns []string
	if columnList != "" {
		columns = strings.Split(columnList, ",")
	} else {
		for _, c := range t.OrderedColumns() {
			columns = append(columns, c.Name)
		}
	}

	cur := t.NewTableScanCursor()
	for {
		select {
		case <-c.ShutDownCh:
			return 0
		default:
		}

		ok, err := cur.MoveToNextRow()
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
			return 1
		}
		if !ok {
			return 0
		}
		row, err := cur.CurrentRow(columns...)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
			return 1
		}
		parts := make([]string, len(columns))
		for i, name := range columns {
			parts[i] = fmt.Sprintf("%s=%v", name, row[name])
		}
		fmt.Printf("%s %s\n", cur.Position().Row, strings.Join(parts, " "))
	}
}
