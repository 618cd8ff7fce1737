package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// StrategyStateChange sends RED:1 / RED:0 on every transition.
	StrategyStateChange = "state"
	// StrategyKeepAlive sends K while the target is visible.
	StrategyKeepAlive = "keepalive"

	// DeviceNone disables the serial link.
	DeviceNone = "none"
	// DevicePattern selects the synthetic frame source.
	DevicePattern = "pattern"
)

type Config struct {
	Host      string
	Port      int
	PageTitle string

	CameraDevice     string
	FrameWidth       int
	FrameHeight      int
	FrameRate        int
	FrameReadTimeout time.Duration
	JPEGQuality      int // 0 = encoder default

	MinArea      float64
	BoxColor     string
	BoxThickness int

	SerialDevice       string
	SerialBaud         int
	SerialReadTimeout  time.Duration
	SerialWriteTimeout time.Duration
	SerialWriteRetries int
	SerialResetDelay   time.Duration

	NotifyStrategy    string
	KeepAliveInterval time.Duration

	ClientBuffer int

	DatabasePath          string
	SnapshotDirectory     string
	SnapshotBufferLimit   int
	SnapshotFlushInterval int // seconds

	LogDirectory string
	LogLevel     string
	ControlToken string
}

// Load reads the optional dotenv file named by ENV_FILE and builds the
// configuration from the environment, falling back to defaults.
func Load() *Config {
	_ = godotenv.Load(getEnv("ENV_FILE", ".env"))

	return &Config{
		Host:      getEnv("HOST", "0.0.0.0"),
		Port:      getEnvAsInt("PORT", 5000),
		PageTitle: getEnv("PAGE_TITLE", "Live Stream + Red Detection + Arduino Serial Output"),

		CameraDevice:     getEnv("CAMERA_DEVICE", "/dev/video0"),
		FrameWidth:       getEnvAsInt("FRAME_WIDTH", 640),
		FrameHeight:      getEnvAsInt("FRAME_HEIGHT", 480),
		FrameRate:        getEnvAsInt("FRAME_RATE", 30),
		FrameReadTimeout: getEnvAsDuration("FRAME_READ_TIMEOUT", 5*time.Second),
		JPEGQuality:      getEnvAsInt("JPEG_QUALITY", 70),

		MinArea:      getEnvAsFloat("DETECT_MIN_AREA", 500),
		BoxColor:     getEnv("BOX_COLOR", "#ff0000"),
		BoxThickness: getEnvAsInt("BOX_THICKNESS", 2),

		SerialDevice:       getEnv("SERIAL_DEVICE", "/dev/ttyACM0"),
		SerialBaud:         getEnvAsInt("SERIAL_BAUD", 115200),
		SerialReadTimeout:  getEnvAsDuration("SERIAL_READ_TIMEOUT", time.Second),
		SerialWriteTimeout: getEnvAsDuration("SERIAL_WRITE_TIMEOUT", 500*time.Millisecond),
		SerialWriteRetries: getEnvAsInt("SERIAL_WRITE_RETRIES", 2),
		SerialResetDelay:   getEnvAsDuration("SERIAL_RESET_DELAY", 2*time.Second),

		NotifyStrategy:    getEnv("NOTIFY_STRATEGY", StrategyStateChange),
		KeepAliveInterval: getEnvAsDuration("KEEPALIVE_INTERVAL", time.Second),

		ClientBuffer: getEnvAsInt("CLIENT_BUFFER", 2),

		DatabasePath:          getEnv("DB_PATH", filepath.Join("data", "events.db")),
		SnapshotDirectory:     getEnv("SNAPSHOT_DIR", filepath.Join(".", "snapshots")),
		SnapshotBufferLimit:   getEnvAsInt("SNAPSHOT_BUFFER_LIMIT", 10),
		SnapshotFlushInterval: getEnvAsInt("SNAPSHOT_FLUSH_INTERVAL", 30),

		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		ControlToken: getEnv("CONTROL_TOKEN", ""),
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid PORT: %d", c.Port)
	case c.FrameWidth <= 0 || c.FrameHeight <= 0:
		return fmt.Errorf("invalid frame size: %dx%d", c.FrameWidth, c.FrameHeight)
	case c.FrameRate <= 0:
		return fmt.Errorf("invalid FRAME_RATE: %d", c.FrameRate)
	case c.JPEGQuality < 0 || c.JPEGQuality > 100:
		return fmt.Errorf("invalid JPEG_QUALITY: %d", c.JPEGQuality)
	case c.BoxThickness <= 0:
		return fmt.Errorf("invalid BOX_THICKNESS: %d", c.BoxThickness)
	case c.ClientBuffer <= 0:
		return fmt.Errorf("invalid CLIENT_BUFFER: %d", c.ClientBuffer)
	case c.SerialWriteRetries < 0:
		return fmt.Errorf("invalid SERIAL_WRITE_RETRIES: %d", c.SerialWriteRetries)
	case c.KeepAliveInterval <= 0:
		return fmt.Errorf("invalid KEEPALIVE_INTERVAL: %s", c.KeepAliveInterval)
	}

	if c.NotifyStrategy != StrategyStateChange && c.NotifyStrategy != StrategyKeepAlive {
		return fmt.Errorf("unknown NOTIFY_STRATEGY %q (want %q or %q)", c.NotifyStrategy, StrategyStateChange, StrategyKeepAlive)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SerialEnabled is false when SERIAL_DEVICE is empty or "none".
func (c *Config) SerialEnabled() bool {
	return c.SerialDevice != "" && c.SerialDevice != DeviceNone
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("1500ms") or bare seconds ("2").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
