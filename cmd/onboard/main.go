package main

import (
	"errors"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options is the root command that groups sub-commands. The struct tags are
// interpreted by github.com/jessevdk/go-flags.
type Options struct {
	Server  string     `long:"server" env:"ONBOARD_SERVER" default:"http://localhost:8080/api/v1" description:"API base URL"`
	Token   string     `long:"token" env:"ONBOARD_TOKEN" description:"Bearer token"`
	Queue   string     `long:"queue" env:"ONBOARD_QUEUE" description:"Pending commit database (defaults to the user config dir)"`
	Verbose bool       `short:"v" long:"verbose" description:"Debug logging"`
	Chat    ChatCmd    `command:"chat" description:"Continue or start an onboarding conversation"`
	Recover RecoverCmd `command:"recover" description:"Replay exchanges the server has not confirmed"`
	Status  StatusCmd  `command:"status" description:"Show the authoritative session state"`
	Issue   TokenCmd   `command:"token" description:"Issue a development access token"`
}

var opts Options

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	parser := flags.NewParser(&opts, flags.Default)
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if opts.Verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		if cmd == nil {
			return nil
		}
		return cmd.Execute(args)
	}

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
