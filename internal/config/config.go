package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/rocket_attitude/internal/fusion"
	"github.com/relabs-tech/rocket_attitude/internal/linalg"
)

// Sample sources understood by SOURCE.
const (
	SourceMQTT   = "mqtt"
	SourceSerial = "serial"
	SourcePoll   = "poll"
	SourceIMU    = "imu"
	SourceMock   = "mock"
)

// Config holds all application configuration values.
type Config struct {
	// Fusion
	Filter            fusion.Kind
	Alpha             float64
	Compensate        bool
	Beta              float64
	SensorOffset      linalg.Vec3 // metres
	WindowCapacity    int
	HistoryCapacity   int
	MaxDT             float64 // seconds
	KalmanGeneralInv  bool
	IncrementalFusion bool

	// Sample source
	Source         string
	SourceBuffer   int
	SampleInterval int // milliseconds

	// MQTT
	MQTTBroker           string
	MQTTClientIDFusion   string
	MQTTClientIDConsole  string
	MQTTClientIDProducer string
	MQTTClientIDWeb      string
	MQTTClientIDGPS      string
	MQTTPublish          bool

	// Topics
	TopicSensorsLive string
	TopicPoseFused   string
	TopicGPS         string

	// Serial telemetry link
	SerialPort     string
	SerialBaudRate int

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// HTTP polling
	PollURL string

	// IMU Hardware
	IMUSPIDevice     string
	IMUCSPin         string
	BMPSPIDevice     string
	IMUAccelLSBPerG  float64
	IMUGyroLSBPerDPS float64
	SeaLevelPressure float64 // Pa

	// Web Server
	WebServerPort int

	// Recorder
	RecordDBPath string
}

// Default returns the stock configuration. Files only need to list the
// keys they change.
func Default() *Config {
	return &Config{
		Filter:               fusion.Complementary,
		Alpha:                0.98,
		Compensate:           true,
		Beta:                 0.1,
		SensorOffset:         linalg.Vec3{X: 0, Y: 0, Z: 0.03},
		WindowCapacity:       300,
		HistoryCapacity:      100000,
		MaxDT:                0.5,
		Source:               SourceMock,
		SourceBuffer:         64,
		SampleInterval:       100,
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDFusion:   "rocket-fusion",
		MQTTClientIDConsole:  "rocket-console-subscriber",
		MQTTClientIDProducer: "rocket-producer",
		MQTTClientIDWeb:      "rocket-web-subscriber",
		MQTTClientIDGPS:      "rocket-gps-producer",
		TopicSensorsLive:     "rocket/sensors",
		TopicPoseFused:       "rocket/pose/fused",
		TopicGPS:             "rocket/gps",
		SerialBaudRate:       115200,
		GPSSerialPort:        "/dev/serial0",
		GPSBaudRate:          9600,
		IMUSPIDevice:         "/dev/spidev0.0",
		IMUCSPin:             "8",
		IMUAccelLSBPerG:      16384,
		IMUGyroLSBPerDPS:     131,
		SeaLevelPressure:     101325,
		WebServerPort:        8080,
	}
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only InitGlobal sets it.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock for initialization,
//     read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads a configuration file on top of Default. Files ending in .yaml
// or .yml are YAML mappings; anything else is KEY=VALUE lines. Both use the
// same keys.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		return ParseYAML(file)
	}
	return Parse(file)
}

// Parse reads KEY=VALUE lines. Blank lines and # comments are skipped.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseYAML reads a flat YAML mapping of config keys. Sequences are joined
// with commas, so SENSOR_OFFSET may be written as [0, 0, 0.03].
func ParseYAML(r io.Reader) (*Config, error) {
	var doc map[string]yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cfg := Default()
	for _, key := range keys {
		node := doc[key]
		value, err := scalarValue(&node)
		if err != nil {
			return nil, fmt.Errorf("config key %s (line %d): %w", key, node.Line, err)
		}
		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", node.Line, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func scalarValue(n *yaml.Node) (string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Value, nil
	case yaml.SequenceNode:
		parts := make([]string, len(n.Content))
		for i, c := range n.Content {
			if c.Kind != yaml.ScalarNode {
				return "", fmt.Errorf("nested sequences are not supported")
			}
			parts[i] = c.Value
		}
		return strings.Join(parts, ","), nil
	}
	return "", fmt.Errorf("expected a scalar or a list")
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Fusion
	case "FILTER":
		c.Filter, err = fusion.ParseKind(value)
		if err != nil {
			return fmt.Errorf("invalid FILTER: %w", err)
		}
	case "COMPLEMENTARY_ALPHA":
		c.Alpha, err = parseFloat(key, value)
	case "COMPLEMENTARY_COMPENSATE":
		c.Compensate, err = parseBool(key, value)
	case "MADGWICK_BETA":
		c.Beta, err = parseFloat(key, value)
	case "SENSOR_OFFSET":
		c.SensorOffset, err = parseVec3(key, value)
	case "WINDOW_CAPACITY":
		c.WindowCapacity, err = parseInt(key, value)
	case "HISTORY_CAPACITY":
		c.HistoryCapacity, err = parseInt(key, value)
	case "MAX_DT":
		c.MaxDT, err = parseFloat(key, value)
	case "KALMAN_GENERAL_INVERSE":
		c.KalmanGeneralInv, err = parseBool(key, value)
	case "INCREMENTAL_FUSION":
		c.IncrementalFusion, err = parseBool(key, value)

	// Sample source
	case "SOURCE":
		switch v := strings.ToLower(value); v {
		case SourceMQTT, SourceSerial, SourcePoll, SourceIMU, SourceMock:
			c.Source = v
		default:
			return fmt.Errorf("SOURCE must be one of mqtt, serial, poll, imu, mock, got %q", value)
		}
	case "SOURCE_BUFFER":
		c.SourceBuffer, err = parseInt(key, value)
	case "SAMPLE_INTERVAL":
		c.SampleInterval, err = parseInt(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_FUSION":
		c.MQTTClientIDFusion = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_PUBLISH":
		c.MQTTPublish, err = parseBool(key, value)

	// Topics
	case "TOPIC_SENSORS_LIVE":
		c.TopicSensorsLive = value
	case "TOPIC_POSE_FUSED":
		c.TopicPoseFused = value
	case "TOPIC_GPS":
		c.TopicGPS = value

	// Serial telemetry link
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parseInt(key, value)

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = parseInt(key, value)

	// HTTP polling
	case "POLL_URL":
		c.PollURL = value

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "BMP_SPI_DEVICE":
		c.BMPSPIDevice = value
	case "IMU_ACCEL_LSB_PER_G":
		c.IMUAccelLSBPerG, err = parseFloat(key, value)
	case "IMU_GYRO_LSB_PER_DPS":
		c.IMUGyroLSBPerDPS, err = parseFloat(key, value)
	case "SEA_LEVEL_PRESSURE_PA":
		c.SeaLevelPressure, err = parseFloat(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)

	// Recorder
	case "RECORD_DB_PATH":
		c.RecordDBPath = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// parseVec3 reads "x,y,z".
func parseVec3(key, value string) (linalg.Vec3, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return linalg.Vec3{}, fmt.Errorf("%s must be x,y,z, got %q", key, value)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return linalg.Vec3{}, fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		v[i] = f
	}
	return linalg.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

// validate checks ranges and the fields the selected source needs.
func (c *Config) validate() error {
	if err := c.FusionParams().Validate(); err != nil {
		return err
	}
	if c.WindowCapacity <= 0 {
		return fmt.Errorf("WINDOW_CAPACITY must be > 0, got %d", c.WindowCapacity)
	}
	if c.HistoryCapacity != 0 && c.HistoryCapacity < c.WindowCapacity {
		return fmt.Errorf("HISTORY_CAPACITY must be 0 or >= WINDOW_CAPACITY, got %d", c.HistoryCapacity)
	}
	if c.SourceBuffer <= 0 {
		return fmt.Errorf("SOURCE_BUFFER must be > 0, got %d", c.SourceBuffer)
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("SAMPLE_INTERVAL must be > 0, got %d", c.SampleInterval)
	}
	if c.WebServerPort < 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", c.WebServerPort)
	}

	switch c.Source {
	case SourceMQTT:
		if c.TopicSensorsLive == "" {
			return fmt.Errorf("TOPIC_SENSORS_LIVE is required for SOURCE=mqtt")
		}
	case SourceSerial:
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required for SOURCE=serial")
		}
		if c.SerialBaudRate <= 0 {
			return fmt.Errorf("SERIAL_BAUD_RATE is required for SOURCE=serial")
		}
	case SourcePoll:
		if c.PollURL == "" {
			return fmt.Errorf("POLL_URL is required for SOURCE=poll")
		}
	case SourceIMU:
		if c.IMUSPIDevice == "" {
			return fmt.Errorf("IMU_SPI_DEVICE is required for SOURCE=imu")
		}
		if c.IMUAccelLSBPerG <= 0 || c.IMUGyroLSBPerDPS <= 0 {
			return fmt.Errorf("IMU_ACCEL_LSB_PER_G and IMU_GYRO_LSB_PER_DPS must be > 0")
		}
	}

	if (c.Source == SourceMQTT || c.MQTTPublish) && c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	return nil
}

// FusionParams returns the estimator tuning.
func (c *Config) FusionParams() fusion.Params {
	return fusion.Params{
		Alpha:          c.Alpha,
		Compensate:     c.Compensate,
		Beta:           c.Beta,
		SensorOffset:   c.SensorOffset,
		MaxDT:          c.MaxDT,
		GeneralInverse: c.KalmanGeneralInv,
	}
}

// WebAddr is the HTTP listen address, or "" when the server is disabled.
func (c *Config) WebAddr() string {
	if c.WebServerPort == 0 {
		return ""
	}
	return fmt.Sprintf(":%d", c.WebServerPort)
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// This is the only function that can set globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
