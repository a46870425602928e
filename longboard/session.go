package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/itohio/golongboard/pkg/board"
	"github.com/itohio/golongboard/pkg/command"
	"github.com/itohio/golongboard/pkg/config"
	"github.com/itohio/golongboard/pkg/history"
	"github.com/itohio/golongboard/pkg/longboard"
	"github.com/itohio/golongboard/pkg/telemetry"
)

// session tracks everything started by a connect for graceful shutdown.
type session struct {
	device board.Device
	system *longboard.System
	codes  command.Codes
	mqtt   *telemetry.MQTT

	// Dashboard history feed (nil when running headless)
	records     *telemetry.ChannelSink
	historyDone chan struct{}
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// openSession connects the board and starts the controller.
// When hist is not nil it is fed with snapshots every cfg.Dashboard.Period.
func openSession(cfg *config.Config, useMock bool, hist *history.History, sinks ...telemetry.Sink) (*session, error) {
	var dev board.Device
	name := cfg.Serial.Port
	if useMock {
		dev = board.NewMock(&cfg.Mock, cfg.Wheel, cfg.Battery)
		name = "simulated board"
	} else {
		dev = board.New(cfg.Serial.Port, cfg.Serial.BaudRate, board.DefaultBufferSize)
	}

	if err := dev.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", name, err)
	}
	log.Printf("Connected to %s", name)

	s := &session{
		device: dev,
		codes:  command.CodesFromConfig(cfg.Command),
	}

	sinks = append([]telemetry.Sink(nil), sinks...)
	if cfg.Telemetry.MQTT.Broker != "" {
		m, err := telemetry.DialMQTT(cfg.Telemetry.MQTT)
		if err != nil {
			log.Printf("MQTT disabled: %v", err)
		} else {
			s.mqtt = m
			sinks = append(sinks, m)
		}
	}

	opts := []longboard.Option{longboard.WithSinks(sinks...)}
	if cfg.GPIO.SensorLine >= 0 {
		opts = append(opts, longboard.WithGPIOEdges())
	}

	sys, err := longboard.New(cfg, dev, opts...)
	if err != nil {
		s.close()
		return nil, err
	}
	s.system = sys

	if s.mqtt != nil {
		if err := s.mqtt.SubscribeCommands(sys.Command); err != nil {
			log.Printf("Remote commands over MQTT disabled: %v", err)
		}
	}

	if err := sys.Start(context.Background()); err != nil {
		s.close()
		return nil, err
	}

	if hist != nil {
		s.feedHistory(hist, cfg.Dashboard.Period)
	}

	return s, nil
}

// feedHistory samples the system into hist on its own reporter.
func (s *session) feedHistory(hist *history.History, period time.Duration) {
	hist.ResetShutdown()
	s.records = telemetry.NewChannelSink(100)
	s.historyDone = make(chan struct{})
	go func() {
		defer close(s.historyDone)
		hist.ProcessRecords(s.records.Records())
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	reporter := telemetry.NewReporter(s.system.Snapshot, s.records)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		reporter.Run(ctx, period)
	}()
}

// remote injects a rider command. On the simulated board the command travels
// through the board's wireless link like a real remote button press.
func (s *session) remote(code command.Code) {
	if m, ok := s.device.(*board.Mock); ok {
		if err := m.Press(s.codes.Byte(code)); err != nil {
			log.Printf("Remote %s not delivered: %v", code, err)
		}
		return
	}

	switch code {
	case command.CodeAdvance:
		s.system.Advance()
	case command.CodeRelease:
		s.system.Release()
	case command.CodeBrake:
		s.system.Brake()
	}
}

// close stops the dashboard feed and the controller, then releases the board.
func (s *session) close() {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
	if s.records != nil {
		s.records.Close()
		<-s.historyDone
	}
	if s.system != nil {
		s.system.Stop()
	}
	if s.mqtt != nil {
		s.mqtt.Close()
	}
	if s.device != nil {
		if err := s.device.Close(); err != nil {
			log.Printf("Failed to close board: %v", err)
		}
	}
}
