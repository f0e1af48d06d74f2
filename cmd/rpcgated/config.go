package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/rpcgate/internal/gateway"
)

type fileConfig struct {
	Listen          []string `toml:"listen"`
	WWWRoot         string   `toml:"www_root"`
	PluginDir       string   `toml:"plugin_dir"`
	PasswordFile    string   `toml:"password_file"`
	RecvTimeout     string   `toml:"recv_timeout"`
	RecvTimeoutMS   int64    `toml:"recv_timeout_ms"`
	CorsOrigins     []string `toml:"cors_origins"`
	AllowFileWrite  bool     `toml:"allow_file_write"`
	AllowExec       bool     `toml:"allow_exec"`
	ExecTimeout     string   `toml:"exec_timeout"`
	MaxMessageBytes int64    `toml:"max_message_bytes"`
	MetricsToken    string   `toml:"metrics_token"`
	QueueSize       int      `toml:"queue_size"`
}

func loadServiceConfig(path string) (gateway.ServiceConfig, error) {
	cfg := gateway.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return gateway.ServiceConfig{}, fmt.Errorf("load rpcgated config: %w", err)
	}

	if meta.IsDefined("listen") {
		cfg.Listen = normalizeList(raw.Listen)
	}

	if meta.IsDefined("www_root") {
		cfg.WWWRoot = strings.TrimSpace(raw.WWWRoot)
	}

	if meta.IsDefined("plugin_dir") {
		cfg.PluginDir = strings.TrimSpace(raw.PluginDir)
	}

	if meta.IsDefined("password_file") {
		cfg.PasswordFile = strings.TrimSpace(raw.PasswordFile)
	}

	if meta.IsDefined("recv_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RecvTimeout))
		if err != nil {
			return gateway.ServiceConfig{}, fmt.Errorf("parse recv_timeout: %w", err)
		}
		cfg.RecvTimeout = d
	}

	if meta.IsDefined("recv_timeout_ms") {
		cfg.RecvTimeout = time.Duration(raw.RecvTimeoutMS) * time.Millisecond
	}

	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}

	if meta.IsDefined("allow_file_write") {
		cfg.AllowFileWrite = raw.AllowFileWrite
	}

	if meta.IsDefined("allow_exec") {
		cfg.AllowExec = raw.AllowExec
	}

	if meta.IsDefined("exec_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ExecTimeout))
		if err != nil {
			return gateway.ServiceConfig{}, fmt.Errorf("parse exec_timeout: %w", err)
		}
		cfg.ExecTimeout = d
	}

	if meta.IsDefined("max_message_bytes") {
		if raw.MaxMessageBytes <= 0 || raw.MaxMessageBytes > 1<<31 {
			return gateway.ServiceConfig{}, fmt.Errorf("max_message_bytes out of range: %d", raw.MaxMessageBytes)
		}
		cfg.MaxMessageBytes = uint32(raw.MaxMessageBytes)
	}

	if meta.IsDefined("metrics_token") {
		cfg.MetricsToken = strings.TrimSpace(raw.MetricsToken)
	}

	if meta.IsDefined("queue_size") {
		cfg.QueueSize = raw.QueueSize
	}

	return cfg, nil
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, item := range in {
		v := strings.TrimSpace(item)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
