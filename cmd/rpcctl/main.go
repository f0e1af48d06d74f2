package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danmuck/rpcgate/internal/auth"
	"github.com/danmuck/rpcgate/internal/logging"
	"github.com/danmuck/rpcgate/internal/protocol/frame"
	"github.com/danmuck/rpcgate/internal/protocol/value"
	"github.com/danmuck/rpcgate/internal/transport"
)

const usage = `usage: rpcctl [flags] <command> [args]

commands:
  challenge
  login
  authenticate
  list [pattern]
  call <object> <method> [json-args]
  logout`

type options struct {
	url      string
	username string
	password string
	tlv      bool
	timeout  time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.url, "url", "ws://127.0.0.1:8080/ws", "gateway websocket url")
	flag.StringVar(&opts.username, "u", "admin", "username")
	flag.StringVar(&opts.password, "p", os.Getenv("RPCGATE_PASSWORD"), "password (default $RPCGATE_PASSWORD)")
	flag.BoolVar(&opts.tlv, "tlv", false, "send binary TLV frames instead of JSON")
	flag.DurationVar(&opts.timeout, "timeout", 10*time.Second, "overall timeout")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	logging.ConfigureRuntime()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	reply, err := run(opts, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "rpcctl: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(value.DumpJSON(reply)))
	if _, failed := reply.Lookup("error"); failed {
		os.Exit(1)
	}
}

func run(opts options, args []string) (value.Node, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	enc := frame.EncodingJSON
	if opts.tlv {
		enc = frame.EncodingTLV
	}
	client, err := transport.Dial(ctx, opts.url, enc, transport.DefaultBackoff())
	if err != nil {
		return value.Node{}, err
	}
	defer client.Close()

	command := args[0]
	if command == "challenge" {
		return client.Call(ctx, "challenge")
	}

	sid, reply, err := login(ctx, client, opts.username, opts.password)
	if err != nil || command == "login" {
		return reply, err
	}

	params, err := buildParams(command, sid, args[1:])
	if err != nil {
		return value.Node{}, err
	}
	return client.Call(ctx, command, params...)
}

// login runs challenge then login and returns the new session id.
func login(ctx context.Context, client *transport.Client, username, password string) (string, value.Node, error) {
	reply, err := client.Call(ctx, "challenge")
	if err != nil {
		return "", reply, err
	}
	token, err := resultString(reply, "token")
	if err != nil {
		return "", reply, err
	}
	hash, err := auth.HashPassword(username, password)
	if err != nil {
		return "", reply, err
	}
	resp, err := auth.Response(hash, token)
	if err != nil {
		return "", reply, err
	}
	reply, err = client.Call(ctx, "login", value.String(username), value.String(resp))
	if err != nil {
		return "", reply, err
	}
	sid, err := resultString(reply, "success")
	return sid, reply, err
}

func buildParams(command, sid string, args []string) ([]value.Node, error) {
	switch command {
	case "authenticate", "logout":
		return []value.Node{value.String(sid)}, nil
	case "list":
		pattern := "*"
		if len(args) > 0 {
			pattern = args[0]
		}
		return []value.Node{value.String(sid), value.String(pattern)}, nil
	case "call":
		if len(args) < 2 {
			return nil, errors.New("call needs <object> <method> [json-args]")
		}
		callArgs := value.Table()
		if len(args) > 2 {
			parsed, err := value.ParseJSON([]byte(args[2]))
			if err != nil {
				return nil, fmt.Errorf("parse args: %w", err)
			}
			callArgs = parsed
		}
		return []value.Node{value.String(sid), value.String(args[0]), value.String(args[1]), callArgs}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}
}

func resultString(reply value.Node, name string) (string, error) {
	if e, failed := reply.Lookup("error"); failed {
		s, _ := e.Str()
		return "", fmt.Errorf("server error: %s", s)
	}
	res, ok := reply.Lookup("result")
	if !ok {
		return "", errors.New("reply has no result")
	}
	n, ok := res.Lookup(name)
	if !ok {
		return "", fmt.Errorf("result has no %q", name)
	}
	return n.Str()
}
