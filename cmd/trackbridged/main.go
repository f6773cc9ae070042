// Command trackbridged runs the trackbridge daemon in the foreground. It is
// meant for service managers; interactive use goes through `trackbridge serve`.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"

	"trackbridge/internal/config"
	"trackbridge/internal/daemonrun"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	cfg, _, _, err := config.Load(os.Getenv(config.EnvConfigPath))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("daemon: %v", err)
	}
}
