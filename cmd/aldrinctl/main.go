// Command aldrinctl is a small diagnostic client: it connects to a
// broker, creates an object and a service on it, serves one function
// that echoes its argument back, and logs bus topology events for as
// long as it runs. Useful for exercising a broker by hand.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/adred-codev/aldrin/internal/client"
	"github.com/adred-codev/aldrin/internal/core"
	"github.com/adred-codev/aldrin/internal/monitoring"
	"github.com/adred-codev/aldrin/internal/transport/wsconn"
)

const echoFunction uint32 = 1

func main() {
	addr := flag.String("addr", "localhost:7200", "broker WebSocket address")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := monitoring.NewLogger(monitoring.LoggerConfig{Level: *logLevel, Format: "pretty"}, "aldrinctl")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := wsconn.Dial(ctx, *addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", *addr).Msg("dial failed")
	}

	c, h, err := client.Connect(ctx, conn, 1, 17, core.None, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect handshake failed")
	}
	go func() {
		if err := c.Run(ctx); err != nil {
			logger.Warn().Err(err).Msg("session run loop exited")
		}
	}()

	obj, err := h.CreateObject(ctx, core.NewObjectUuid())
	if err != nil {
		logger.Fatal().Err(err).Msg("create object failed")
	}
	logger.Info().Str("object", obj.Id().Uuid.String()).Msg("object created")

	svc, err := obj.CreateService(ctx, core.NewServiceUuid())
	if err != nil {
		logger.Fatal().Err(err).Msg("create service failed")
	}
	logger.Info().Str("service", svc.Id().Uuid.String()).Msg("service created")

	calls := svc.Serve()
	go func() {
		for call := range calls {
			logger.Info().Uint32("function", call.Function).Msg("serving call")
			if call.Function == echoFunction {
				call.Reply(ctx, core.CallFunctionOk, call.Args)
				continue
			}
			call.Reply(ctx, core.CallFunctionInvalidFunction, core.None)
		}
	}()

	bl, err := h.CreateBusListener(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bus listener failed")
	}
	if err := bl.Start(ctx, core.BusListenerScopeAll); err != nil {
		logger.Fatal().Err(err).Msg("start bus listener failed")
	}
	go func() {
		for ev := range bl.Events() {
			logger.Info().
				Int("kind", int(ev.Kind)).
				Str("object", ev.Object.Uuid.String()).
				Msg("bus event")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	h.Shutdown()
	<-h.Done()
}
