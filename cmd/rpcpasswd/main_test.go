package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/rpcgate/internal/auth"
	"github.com/danmuck/rpcgate/internal/config"
)

func TestRunCreatesUpdatesAndDeletes(t *testing.T) {
	file := filepath.Join(t.TempDir(), "users.toml")

	var grants grantList
	if err := grants.Set("net:net.*:*:w"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := run(file, "ops", "", false, grants, strings.NewReader("hunter2\n")); err != nil {
		t.Fatalf("create: %v", err)
	}
	users, err := config.LoadUsers(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want, _ := auth.HashPassword("ops", "hunter2")
	if len(users) != 1 || users[0].PasswordHash != want || users[0].Grants[0].Object != "net.*" {
		t.Fatalf("unexpected users: %+v", users)
	}

	if err := run(file, "ops", "changed", false, nil, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	users, _ = config.LoadUsers(file)
	if len(users[0].Grants) != 1 {
		t.Fatalf("password change must keep grants")
	}

	if err := run(file, "ops", "", true, nil, nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	users, _ = config.LoadUsers(file)
	if len(users) != 0 {
		t.Fatalf("user not deleted")
	}
	if err := run(file, "ghost", "", true, nil, nil); err == nil {
		t.Fatalf("deleting unknown user must fail")
	}
}

func TestGrantParse(t *testing.T) {
	var g grantList
	if err := g.Set("a:b:c"); err == nil {
		t.Fatalf("expected error for short grant")
	}
}
