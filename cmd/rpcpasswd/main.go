package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/danmuck/rpcgate/internal/auth"
	"github.com/danmuck/rpcgate/internal/config"
)

type grantList []config.GrantConfig

func (g *grantList) String() string { return fmt.Sprint(len(*g)) }

// Set parses scope:object:method:perm.
func (g *grantList) Set(v string) error {
	parts := strings.Split(v, ":")
	if len(parts) != 4 {
		return fmt.Errorf("grant must be scope:object:method:perm, got %q", v)
	}
	*g = append(*g, config.GrantConfig{Scope: parts[0], Object: parts[1], Method: parts[2], Permission: parts[3]})
	return nil
}

func main() {
	file := flag.String("f", "users.toml", "users file")
	username := flag.String("u", "", "username")
	password := flag.String("p", "", "password (read from stdin when empty)")
	remove := flag.Bool("delete", false, "remove the user")
	var grants grantList
	flag.Var(&grants, "g", "grant scope:object:method:perm (repeatable, replaces existing grants)")
	flag.Parse()

	if err := run(*file, *username, *password, *remove, grants, os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "rpcpasswd: %v\n", err)
		os.Exit(1)
	}
}

func run(file, username, password string, remove bool, grants grantList, stdin io.Reader) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("username is required")
	}
	cfg, err := config.LoadUsersConfig(file)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		cfg = config.UsersConfig{}
	}

	idx := -1
	for i, u := range cfg.Users {
		if u.Username == username {
			idx = i
			break
		}
	}

	if remove {
		if idx < 0 {
			return fmt.Errorf("unknown user %q", username)
		}
		cfg.Users = append(cfg.Users[:idx], cfg.Users[idx+1:]...)
		return config.SaveUsersConfig(file, cfg)
	}

	if password == "" {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("empty password")
	}
	hash, err := auth.HashPassword(username, password)
	if err != nil {
		return err
	}

	if idx < 0 {
		cfg.Users = append(cfg.Users, config.UserConfig{Username: username})
		idx = len(cfg.Users) - 1
	}
	cfg.Users[idx].PasswordHash = hash
	if len(grants) > 0 {
		cfg.Users[idx].Grants = grants
	}
	return config.SaveUsersConfig(file, cfg)
}
