// Command echoserver is a worked example wiring the reactor end-to-end: it
// listens on a TCP address and echoes every byte it receives back to the
// sender, using reactor.EchoConnection (Testable Scenario 1) and an
// accept-rate policy backed by ratelimit.Policy.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/go-reactor/ratelimit"
	"github.com/joeycumines/go-reactor/reactor"
	"github.com/joeycumines/go-reactor/rlog"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9444", "address to listen on")
	jsonLogs := flag.Bool("json", false, "emit structured JSON logs instead of the pretty default")
	idleTimeout := flag.Duration("idle-timeout", 30*time.Second, "per-connection idle timeout")
	flag.Parse()

	var logger rlog.Logger
	if *jsonLogs {
		logger = rlog.NewLogifaceLogger(os.Stdout, rlog.LevelInfo)
	} else {
		logger = rlog.NewDefaultLogger(rlog.LevelInfo)
	}

	limiter := ratelimit.NewPolicy(ratelimit.Rates{
		Global:  map[time.Duration]int{time.Second: 10000},
		PerHost: map[time.Duration]int{time.Second: 200},
	})

	cfg := reactor.Resolve([]reactor.Option{
		reactor.WithIdleTimeout(*idleTimeout),
		reactor.WithLogger(logger),
		reactor.WithAcceptLimiter(limiter),
	})

	manager, err := reactor.NewSelectorManager(
		reactor.NewEndpointFactory(cfg),
		reactor.NewEchoConnection,
		[]reactor.Listener{&statsListener{logger: logger}},
		reactor.WithIdleTimeout(*idleTimeout),
		reactor.WithLogger(logger),
		reactor.WithAcceptLimiter(limiter),
	)
	if err != nil {
		log.Fatalf("echoserver: starting reactor: %v", err)
	}
	defer manager.Stop()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("echoserver: listen %s: %v", *addr, err)
	}
	defer ln.Close()
	logger.Log(rlog.Entry{Level: rlog.LevelInfo, Category: "echoserver", Message: "listening on " + *addr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go acceptLoop(ln, manager, logger)

	<-ctx.Done()
	logger.Log(rlog.Entry{Level: rlog.LevelInfo, Category: "echoserver", Message: "shutting down"})
}

func acceptLoop(ln net.Listener, manager *reactor.SelectorManager, logger rlog.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			logger.Log(rlog.Entry{Level: rlog.LevelError, Category: "echoserver", Message: "accept failed", Err: err})
			return
		}
		if err := manager.Accept(conn, nil); err != nil {
			logger.Log(rlog.Entry{Level: rlog.LevelWarn, Category: "echoserver", Message: "accept rejected", Err: err})
		}
	}
}

// statsListener is a minimal, non-blocking Listener implementation logging
// connection lifecycle events.
type statsListener struct {
	logger rlog.Logger
}

func (s *statsListener) ConnectionOpened(conn reactor.Connection) {
	s.logger.Log(rlog.Entry{Level: rlog.LevelDebug, Category: "connection-opened"})
}

func (s *statsListener) ConnectionClosed(conn reactor.Connection, cause error) {
	s.logger.Log(rlog.Entry{Level: rlog.LevelDebug, Category: "connection-closed", Err: cause})
}

func (s *statsListener) ConnectionRejected(addr net.Addr, cause error) {
	s.logger.Log(rlog.Entry{Level: rlog.LevelWarn, Category: "connection-rejected", Err: cause})
}
