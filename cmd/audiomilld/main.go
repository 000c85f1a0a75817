// Command audiomilld runs the conversion daemon with the default configuration
// path. It is equivalent to `audiomill serve` and exists for service managers
// that expect a dedicated daemon binary.
package main

import (
	"context"
	"log"
	"os"

	"audiomill/internal/config"
	"audiomill/internal/daemonrun"
)

var version = "dev"

func main() {
	cfg, _, _, err := config.Load(os.Getenv("AUDIOMILL_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		Version: version,
		Stdout:  true,
	}); err != nil {
		log.Fatalf("audiomilld: %v", err)
	}
}
