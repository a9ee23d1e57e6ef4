// Command broker runs the murmur relay: a central TCP server that
// forwards ciphertext between connected peers without ever holding a
// decryption key itself.
//
// Configuration Loading Strategy:
// 1. Command line argument: path to a YAML config file
// 2. MURMUR_CONFIG_PATH environment variable, if it names an existing file
// 3. ./config/broker.yaml, if present
// 4. config/broker.yaml next to the binary, if present
// 5. Hardcoded default: listen on 127.0.0.1:1337
//
// Called by: operator / process supervisor
// Calls: internal/config, internal/broker
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/quietwire/murmur/internal/broker"
	"github.com/quietwire/murmur/internal/config"
	"github.com/quietwire/murmur/public/runtime"
)

func main() {
	logFile, err := runtime.OpenLogFile("server_logs.log")
	if err != nil {
		log.Fatalf("Broker: %v", err)
	}
	defer logFile.Close()

	var configFlag *string
	if len(os.Args) >= 2 {
		f := os.Args[1]
		configFlag = &f
	}

	cfg, source, err := config.Load("broker", configFlag)
	if err != nil {
		log.Fatalf("Broker: failed to load config: %v", err)
	}
	if source != "" {
		log.Printf("Broker: using configuration from %s", source)
	} else {
		log.Printf("Broker: no configuration file found, using defaults")
	}

	logger := runtime.NewLogger("Broker", cfg.Broker.Debug)
	logger.LogInfo("starting (PID %d)", runtime.Getpid())

	svc := broker.New(cfg.Broker.ListenAddress, cfg.Broker.Debug)

	ctx, cancel := runtime.WithSignals(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Broker: %v", err)
		}
	case <-ctx.Done():
		logger.LogInfo("received shutdown signal, stopping accept loop")
		if err := svc.Close(); err != nil {
			logger.LogError("error closing listener: %v", err)
		}
		<-errCh
	}

	fmt.Println("Broker: stopped")
}
