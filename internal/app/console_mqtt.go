package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/rocket_attitude/internal/config"
	"github.com/relabs-tech/rocket_attitude/internal/fusion"
	"github.com/relabs-tech/rocket_attitude/internal/gps"
	"github.com/relabs-tech/rocket_attitude/internal/imu"
)

func RunConsoleMQTT() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}

	subs := []struct {
		topic  string
		handle func([]byte)
	}{
		{cfg.TopicPoseFused, printFused},
		{cfg.TopicSensorsLive, printLive},
		{cfg.TopicGPS, printFix},
	}
	for _, sub := range subs {
		handle := sub.handle
		token := client.Subscribe(sub.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			handle(msg.Payload())
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("console: subscribed to %s", sub.topic)
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func printFused(payload []byte) {
	var f fusion.FusedSample
	if err := json.Unmarshal(payload, &f); err != nil {
		log.Printf("console: fused pose unmarshal error: %v", err)
		return
	}
	fmt.Println(formatFused(f))
}

func printLive(payload []byte) {
	rec, err := imu.DecodeLiveRecord(payload)
	if err != nil {
		log.Printf("console: %v", err)
		return
	}
	a, g := rec.Sensors.Accel, rec.Sensors.Gyro
	alt := "   -   "
	if rec.Sensors.Altitude != nil {
		alt = fmt.Sprintf("%7.1f", *rec.Sensors.Altitude)
	}
	fmt.Printf(
		"[IMU ] ms=%8d  ax=%6.3f ay=%6.3f az=%6.3f  gx=%7.2f gy=%7.2f gz=%7.2f  alt=%s\n",
		rec.System.Millis, a.X, a.Y, a.Z, g.X, g.Y, g.Z, alt,
	)
}

func printFix(payload []byte) {
	var f gps.Fix
	if err := json.Unmarshal(payload, &f); err != nil {
		log.Printf("console: gps unmarshal error: %v", err)
		return
	}
	fmt.Printf(
		"[GPS ] time=%s lat=%.6f lon=%.6f alt=%.1fm sats=%d quality=%s validity=%s\n",
		f.Time, f.Latitude, f.Longitude, f.Altitude, f.Satellites, f.Quality, f.Validity,
	)
}

// formatFused renders one console line for a fused sample.
func formatFused(f fusion.FusedSample) string {
	return fmt.Sprintf(
		"[%-13s] t=%8.3fs  ROLL=%7.2f  PITCH=%7.2f  YAW=%7.2f  ALT=%7.1f",
		f.Filter, f.RelativeTime, f.Roll, f.Pitch, f.Yaw, f.Altitude,
	)
}
