package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/liveshop/go/internal/livestream/control"
	"github.com/mcdev12/liveshop/go/internal/livestream/events"
)

const usage = `usage: livestreamctl [flags] <command> [arg]

commands:
  start              START_STREAM
  end                END_STREAM
  seek <ms>          SEEK to a playback time
  chat               BOT_CHAT (toggle chat)
  script <name>      ON_DEMAND_SCRIPT by name
  emoji <emoji>      ON_DEMAND_SCRIPT by emoji
  state              print the playback snapshot
`

func main() {
	addr := flag.String("addr", "http://localhost:8080", "game server base URL")
	user := flag.String("user", "operator", "publisher id attached to commands")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	client := control.NewClient(http.DefaultClient, *addr, *user)

	if flag.Arg(0) == "state" {
		snap, err := client.State(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "state: %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(snap, "", "  ")
		fmt.Println(string(out))
		return
	}

	cmd, err := parseCommand(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		flag.Usage()
		os.Exit(2)
	}
	if err := client.Send(ctx, cmd); err != nil {
		fmt.Fprintf(os.Stderr, "send %s: %v\n", cmd.Type, err)
		os.Exit(1)
	}
	fmt.Printf("sent %s\n", cmd.Type)
}

func parseCommand(args []string) (events.ControlCommand, error) {
	arg := func() (string, error) {
		if len(args) < 2 {
			return "", fmt.Errorf("%s needs an argument", args[0])
		}
		return args[1], nil
	}

	switch args[0] {
	case "start":
		return events.ControlCommand{Type: events.ControlStartStream}, nil
	case "end":
		return events.ControlCommand{Type: events.ControlEndStream}, nil
	case "chat":
		return events.ControlCommand{Type: events.ControlBotChat}, nil
	case "seek":
		raw, err := arg()
		if err != nil {
			return events.ControlCommand{}, err
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms < 0 {
			return events.ControlCommand{}, fmt.Errorf("invalid playback time %q", raw)
		}
		return events.ControlCommand{Type: events.ControlSeek, Params: events.ControlParams{PlaybackTime: &ms}}, nil
	case "script":
		name, err := arg()
		if err != nil {
			return events.ControlCommand{}, err
		}
		return events.ControlCommand{Type: events.ControlOnDemandScript, Params: events.ControlParams{ScriptName: name}}, nil
	case "emoji":
		emoji, err := arg()
		if err != nil {
			return events.ControlCommand{}, err
		}
		return events.ControlCommand{Type: events.ControlOnDemandScript, Params: events.ControlParams{Emoji: emoji}}, nil
	default:
		return events.ControlCommand{}, fmt.Errorf("unknown command %q", args[0])
	}
}
