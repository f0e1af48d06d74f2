package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/rpcgate/internal/gateway"
	"github.com/danmuck/rpcgate/internal/logging"
	"github.com/danmuck/rpcgate/internal/observability"
)

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// countFlag counts repeated boolean flags such as -v -v.
type countFlag int

func (c *countFlag) String() string { return fmt.Sprint(int(*c)) }

func (c *countFlag) Set(string) error {
	*c++
	return nil
}

func (c *countFlag) IsBoolFlag() bool { return true }

type options struct {
	configPath   string
	wwwRoot      string
	listen       listFlag
	pluginDir    string
	passwordFile string
	verbose      countFlag
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var opts options
	fs.StringVar(&opts.configPath, "c", "", "config file (toml)")
	fs.StringVar(&opts.wwwRoot, "d", "", "www root served next to the websocket")
	fs.Var(&opts.listen, "l", "listen endpoint: ws://host:port, tcp://host:port or unix:///path (repeatable)")
	fs.StringVar(&opts.pluginDir, "p", "", "plugin directory")
	fs.StringVar(&opts.passwordFile, "x", "", "users/password file")
	fs.Var(&opts.verbose, "v", "increase verbosity (repeatable)")
	err := fs.Parse(args)
	return opts, err
}

// resolveConfig layers flags over the config file over defaults.
func resolveConfig(opts options) (gateway.ServiceConfig, error) {
	cfg := gateway.DefaultServiceConfig()
	if opts.configPath != "" {
		loaded, err := loadServiceConfig(opts.configPath)
		if err != nil {
			return gateway.ServiceConfig{}, err
		}
		cfg = loaded
	}
	if opts.wwwRoot != "" {
		cfg.WWWRoot = opts.wwwRoot
	}
	if len(opts.listen) > 0 {
		cfg.Listen = normalizeList(opts.listen)
	}
	if opts.pluginDir != "" {
		cfg.PluginDir = opts.pluginDir
	}
	if opts.passwordFile != "" {
		cfg.PasswordFile = opts.passwordFile
	}
	return cfg, nil
}

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	observability.InitLogger("rpcgated")
	logging.Verbosity(int(opts.verbose))

	cfg, err := resolveConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rpcgated: %v\n", err)
		os.Exit(1)
	}
	svc := gateway.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "rpcgated: %v\n", err)
		os.Exit(1)
	}
}
