package command

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jetdb/jetdb/jet/bytecodec"
	"github.com/jetdb/jetdb/jet/page"
)

type DumpPageCommand struct{}

func (c *DumpPageCommand) Help() string {
	helpText := `
Usage: jetutil dump-page [options] <database> <page-number>

Options:

	-config=""	Configuration file
`

	return strings.TrimSpace(helpText)
}

func (c *DumpPageCommand) Synopsis() string {
	return "Hex-dumps one page with its parsed header"
}

func (c *DumpPageCommand) Run(args []string) int {
	var configPath string

	cmdFlags := flag.NewFlagSet("dump-page", flag.ContinueOnError)
	cmdFlags.StringVar(&configPath, "config", "", "config file")
	if err := cmdFlags.Parse(args); err != nil {
		return 1
	}
	if cmdFlags.NArg() != 2 {
		_, _ = fmt.Fprintln(os.Stderr, c.Help())
		return 1
	}
	pn, err := strconv.ParseUint(cmdFlags.Arg(1), 10, 32)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: bad page number %q\n", cmdFlags.Arg(1))
		return 1
	}

	_, chunked, err := loadConfig(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		return 1
	}

	f, err := os.Open(cmdFlags.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		return 1
	}
	defer f.Close()

	backing, err := page.OpenFileBacking(f, chunked)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		return 1
	}

	raw, err := backing.ReadPage(page.Number(pn))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		return 1
	}

	if pn == 0 {
		fmt.Printf("page 0 (header), %d bytes\n", len(raw))
	} else {
		fmt.Printf("page %d, type %s, %d bytes\n", pn, page.Type(raw[0]), len(raw))
	}
	fmt.Println(bytecodec.Hex(raw))
	return 0
}
