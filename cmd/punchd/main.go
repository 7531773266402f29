package main

import (
	"flag"
	"log"

	"punchd/config"
	"punchd/server"
)

func main() {
	cfgPath := flag.String("config", "", "path to yaml config (optional; env PUNCHD_* overrides)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app := &server.App{}
	app.Initialize(cfg)
	if err := app.Run(); err != nil {
		log.Fatalf("run: %v", err)
	}
}
