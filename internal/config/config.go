package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr      string `envconfig:"LISTEN_ADDR" default:":8080"`
	DatasourceFile  string `envconfig:"DATASOURCE_FILE" default:"/app/data/datasources.yaml"`
	LogPath         string `envconfig:"LOG_PATH" default:""`
	ShutdownTimeout string `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("PROMTUN", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
