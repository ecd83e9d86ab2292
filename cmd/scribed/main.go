// Command scribed runs the meetscribe daemon in the foreground. It is the
// standalone counterpart of `scribe daemon` for service managers that
// supervise the process themselves.
package main

import (
	"context"
	"flag"
	"log"

	"meetscribe/internal/config"
	"meetscribe/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil {
		log.Fatalf("scribed: %v", err)
	}
}
