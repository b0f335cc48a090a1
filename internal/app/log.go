package app

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var Logger zerolog.Logger

// MemoryLog keeps the most recent log output for the /api/log endpoint.
var MemoryLog = &memoryLog{limit: 1 << 16}

// GetLogger returns the root logger, downgraded or upgraded to the level
// configured for this module (yaml: `log: {camera: debug}`).
func GetLogger(module string) zerolog.Logger {
	if s, ok := modules[module]; ok {
		if lvl, err := zerolog.ParseLevel(s); err == nil {
			return Logger.Level(lvl)
		}
		Logger.Warn().Str("module", module).Msg("[app] wrong log level")
	}
	return Logger
}

// log config:
// - format: empty (autodetect color), color, text, json
// - level:  disabled, trace, debug, info, warn, error...
// - any other key is a per-module level override
func initLogger() {
	var cfg struct {
		Mod map[string]string `yaml:"log"`
	}
	cfg.Mod = modules // defaults

	LoadConfig(&cfg)

	var writer io.Writer = os.Stdout

	if format := modules["format"]; format != "json" {
		console := &zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05.000"}
		switch format {
		case "text":
			console.NoColor = true
		case "color":
		default:
			console.NoColor = !isatty.IsTerminal(os.Stdout.Fd())
		}
		writer = console
	}

	writer = zerolog.MultiLevelWriter(writer, MemoryLog)

	lvl, err := zerolog.ParseLevel(modules["level"])
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	Logger = zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}

// module log levels, overridden from yaml
var modules = map[string]string{
	"format": "",
	"level":  "info",
}

type memoryLog struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (m *memoryLog) Write(p []byte) (int, error) {
	m.mu.Lock()
	m.buf = append(m.buf, p...)
	if len(m.buf) > m.limit {
		// drop the oldest half instead of shifting on every write
		m.buf = append(m.buf[:0], m.buf[len(m.buf)-m.limit/2:]...)
	}
	m.mu.Unlock()
	return len(p), nil
}

func (m *memoryLog) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.buf...)
}
