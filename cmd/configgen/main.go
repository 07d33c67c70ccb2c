package main

import (
	"flag"
	"log"

	"github.com/danmuck/xrsync/internal/config"
)

func main() {
	kind := flag.String("kind", "client", "config kind: client|relay")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing client config file")
	input := flag.String("input", "cmd/syncctl/config.toml", "client config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if *kind != "client" {
			log.Fatalf("validation supports kind=client only; relayctl validates its own config at startup")
		}
		if _, err := config.LoadClientConfig(*input); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated client config at %s", *input)
		return
	}

	target := *output
	if target == "" {
		switch *kind {
		case "client":
			target = "cmd/syncctl/config.toml"
		case "relay":
			target = "cmd/relayctl/config.toml"
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
