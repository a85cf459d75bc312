package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/relabs-tech/rocket_attitude/internal/app"
	"github.com/relabs-tech/rocket_attitude/internal/config"
)

func main() {
	configPath := flag.String("config", "", "optional configuration file for filter tuning")
	filter := flag.String("filter", "all", "complementary, kalman, madgwick or all")
	dbPath := flag.String("db", "", "record fused sessions to this SQLite file")
	flag.Usage = func() {
		log.Printf("usage: %s [flags] <log.tsv | ->", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	err := app.RunReplay(context.Background(), app.ReplayOptions{
		Input:  flag.Arg(0),
		Filter: *filter,
		Params: cfg.FusionParams(),
		DBPath: *dbPath,
		Out:    os.Stdout,
	})
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
