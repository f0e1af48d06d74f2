package main

import (
	"flag"
	"log"

	"github.com/danmuck/rpcgate/internal/config"
)

func main() {
	kind := flag.String("kind", "gateway", "config kind: gateway|users")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing users file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		switch *kind {
		case "users":
			if _, err := config.LoadUsers(path); err != nil {
				log.Fatal(err)
			}
		default:
			log.Fatalf("validation supports kind=users only, got %s", *kind)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

func defaultPath(kind string) string {
	switch kind {
	case "gateway":
		return "cmd/rpcgated/config.toml"
	case "users":
		return "cmd/rpcgated/users.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}
