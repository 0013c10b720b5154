package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xiaonanln/edgegate/gateway/gatewayconfig"
	"github.com/xiaonanln/edgegate/gateway/gatewayserver"
	"github.com/xiaonanln/edgegate/util/logger"
)

func main() {
	// Flags and/or config file; sets the default log level as a side effect
	loader := gatewayconfig.NewLoader(nil)
	cfg, err := loader.Load(os.Args[1:])
	log := logger.NewLogger("main")
	if err != nil {
		log.Fatalf("Failed to load gateway config: %v", err)
	}

	srv, err := gatewayserver.NewGatewayServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create gateway server: %v", err)
	}

	// Start is non-blocking
	if err := srv.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start gateway server: %v", err)
	}
	log.Infof("Gateway %s serving on %s (kernel %s)", cfg.ReplicaID, srv.Addr(), cfg.KernelPath)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Infof("Received signal %v, shutting down...", sig)

	if err := srv.Stop(); err != nil {
		log.Errorf("Error stopping gateway: %v", err)
	}
	log.Infof("Gateway stopped")
}
