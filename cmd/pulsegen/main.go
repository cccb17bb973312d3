package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gpiopulse/internal/config"
	"gpiopulse/internal/platform"
	"gpiopulse/internal/pulse"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./pulse.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	caps := platform.Detect()
	log.Printf("pulsegen starting on %q", caps.Model)

	target, err := pulse.ParseTarget(cfg.Pulse.Pin)
	if err != nil {
		log.Fatalf("bad pulse.pin: %v", err)
	}

	p, err := pulse.New(target, cfg.Pulse.FrequencyHz, cfg.Pulse.DutyCycle, cfg.Pulse.Bursts, caps)
	if err != nil {
		log.Fatalf("pulse init failed: %v", err)
	}
	defer p.Close()

	log.Printf("%s", p)
	if err := p.Start(); err != nil {
		log.Fatalf("pulse start failed: %v", err)
	}

	switch {
	case cfg.Pulse.Bursts > 0:
		// A finite burst stops on its own; wait out the nominal run time
		// plus margin, or a signal.
		runTime := time.Duration(float64(cfg.Pulse.Bursts) / cfg.Pulse.FrequencyHz * float64(time.Second))
		select {
		case <-time.After(runTime + 500*time.Millisecond):
		case <-ctx.Done():
		}
	case cfg.Pulse.Duration > 0:
		select {
		case <-time.After(cfg.Pulse.Duration):
		case <-ctx.Done():
		}
	default:
		<-ctx.Done()
	}

	if err := p.Stop(); err != nil {
		log.Printf("pulse stop failed: %v", err)
	}
	if n := p.TeardownGlitches(); n > 0 {
		log.Printf("swallowed %d teardown glitches", n)
	}
	log.Printf("pulsegen stopping")
}
