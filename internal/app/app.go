package app

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/naxcloud/naxcloud/pkg/shell"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var Version = "0.4.0"

// Info is served on the root API endpoint.
var Info = map[string]any{
	"version": Version,
}

func Init() {
	var confs Config
	var version bool

	flag.Var(&confs, "config", "path to config file or raw YAML, support multiple")
	flag.BoolVar(&version, "version", false, "print version and exit")
	flag.Parse()

	if version {
		fmt.Printf("naxcloud version %s %s/%s\n", Version, runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	if confs == nil {
		confs = []string{"naxcloud.yaml"}
	}

	for _, conf := range confs {
		if len(conf) > 0 && conf[0] == '{' {
			// config as raw YAML
			configs = append(configs, []byte(conf))
			continue
		}

		data, _ := os.ReadFile(conf)
		if data == nil {
			continue
		}
		configs = append(configs, []byte(shell.ReplaceEnvVars(string(data))))
	}

	initLogger()

	platform := fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	log.Logger = Logger
	log.Info().Str("version", Version).Str("platform", platform).Msg("naxcloud")
}

// LoadConfig unmarshals every config source into v, later sources win.
func LoadConfig(v any) {
	for _, data := range configs {
		if err := yaml.Unmarshal(data, v); err != nil {
			Logger.Warn().Err(err).Msg("[app] read config")
		}
	}
}

type Config []string

func (c *Config) String() string {
	return strings.Join(*c, " ")
}

func (c *Config) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var configs [][]byte
