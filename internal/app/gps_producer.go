package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/rocket_attitude/internal/config"
	"github.com/relabs-tech/rocket_attitude/internal/gps"
)

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// publishes combined GPS fixes as JSON to TOPIC_GPS. The fusion service
// picks up GGA altitude from there for records that carry none.
func RunGPSProducer() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}

	// ---- 1) Connect to MQTT broker ----
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDGPS)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	// ---- 2) Open GPS serial port ----
	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              uint(cfg.GPSBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(serialOpts)
	if err != nil {
		return fmt.Errorf("gps: open %s: %w", cfg.GPSSerialPort, err)
	}
	defer port.Close()
	log.Printf("GPS serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// unblocks the reader on shutdown
	context.AfterFunc(ctx, func() { _ = port.Close() })

	err = forwardFixes(ctx, port, topicPublisher(client, cfg.TopicGPS, true))
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// forwardFixes reads NMEA lines from r and publishes the accumulated fix
// each time an RMC or GGA sentence updates it. Unparseable sentences are
// skipped.
func forwardFixes(ctx context.Context, r io.Reader, publish publishFunc) error {
	var tracker gps.Tracker
	reader := bufio.NewReader(r)

	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			fix, updated, perr := tracker.Feed(line)
			switch {
			case perr != nil:
				// noisy GPS or partial sentences
			case updated:
				if err := publishFix(fix, publish); err != nil {
					log.Printf("GPS publish error: %v", err)
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("gps: serial link closed")
			}
			log.Printf("GPS read error: %v", err)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func publishFix(fix gps.Fix, publish publishFunc) error {
	payload, err := json.Marshal(fix)
	if err != nil {
		return err
	}
	return publish(payload)
}
