package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/rocket_attitude/internal/app"
	"github.com/relabs-tech/rocket_attitude/internal/config"
)

func main() {
	configPath := flag.String("config", "./rocket_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting rocket-attitude GPS producer (NMEA → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunGPSProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
