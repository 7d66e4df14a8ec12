package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/jetdb/jetdb/cmd/jetutil/command"
	"github.com/mitchellh/cli"
)

func main() {
	args := os.Args[1:]

	commands := map[string]cli.CommandFactory{
		"tables": func() (cli.Command, error) {
			return &command.TablesCommand{}, nil
		},
		"dump-page": func() (cli.Command, error) {
			return &command.DumpPageCommand{}, nil
		},
		"scan": func() (cli.Command, error) {
			return &command.ScanCommand{
				ShutDownCh: makeShutdownCh(),
			}, nil
		},
	}

	jetCLI := &cli.CLI{
		Args:     args,
		Commands: commands,
		HelpFunc: cli.BasicHelpFunc("jetutil"),
	}

	exitCode, err := jetCLI.Run()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		os.Exit(1)
	}

	os.Exit(exitCode)
}

func makeShutdownCh() <-chan struct{} {
	resultCh := make(chan struct{})

	signalCh := make(chan os.Signal, 4)
	signal.Notify(signalCh, os.Interrupt)
	go func() {
		for {
			<-signalCh
			resultCh <- struct{}{}
		}
	}()

	return resultCh
}
