package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/golongboard/pkg/config"
	"github.com/itohio/golongboard/pkg/telemetry"
)

// logSink prints telemetry to the log.
type logSink struct{}

func (logSink) Send(r telemetry.Record) error {
	log.Printf("%s | duty %d%% | %s | %s", r.Text(), r.Duty, r.Intent, r.Safety)
	return nil
}

// runHeadless runs the controller until SIGINT or SIGTERM.
func runHeadless(cfg *config.Config, useMock bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(cfg, useMock, nil, logSink{})
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Printf("Shutting down")
	s.close()
	return nil
}
