// Command fixctl drives one FIX session end to end against a TCP (or TLS)
// counterparty: dial, logon, hold Active until interrupted, logout.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/epic1st/rtx/fixengine/internal/config"
	"github.com/epic1st/rtx/fixengine/internal/orchestrator"
	"github.com/epic1st/rtx/fixengine/internal/session"
	"github.com/epic1st/rtx/fixengine/internal/wire"
	"github.com/epic1st/rtx/fixengine/pkg/fixapi"
)

func main() {
	host := flag.String("host", getEnv("FIX_HOST", "127.0.0.1"), "counterparty host")
	port := flag.Int("port", getEnvInt("FIX_PORT", 5001), "counterparty port")
	useTLS := flag.Bool("tls", getEnv("FIX_TLS", "false") == "true", "connect over TLS")
	flag.Parse()

	sessCfg, err := config.LoadSession()
	if err != nil {
		log.Fatalf("fixctl: loading session config: %v", err)
	}
	engineCfg, err := config.LoadEngine()
	if err != nil {
		log.Fatalf("fixctl: loading engine config: %v", err)
	}

	eng, err := fixapi.New(engineCfg)
	if err != nil {
		log.Fatalf("fixctl: starting engine: %v", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := loggingApp{}
	obs := &fatalObserver{cancel: cancel}

	sess, err := eng.NewSession(ctx, sessCfg, app, obs)
	if err != nil {
		log.Fatalf("fixctl: creating session %s: %v", sessCfg.SessionID, err)
	}
	defer sess.Close()

	transport, err := orchestrator.Dial(ctx, orchestrator.DialOptions{
		Host:        *host,
		Port:        *port,
		TLS:         *useTLS,
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		log.Fatalf("fixctl: dialing %s:%d: %v", *host, *port, err)
	}

	sess.Attach(transport)

	runDone := make(chan error, 1)
	go func() { runDone <- sess.Run(ctx) }()

	log.Printf("fixctl: session %s connecting to %s:%d", sessCfg.SessionID, *host, *port)
	waitForActive(ctx, sess)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Printf("fixctl: interrupted, logging out")
		sess.Disconnect(true)
	case err := <-runDone:
		log.Printf("fixctl: session loop ended: %v", err)
		return
	}

	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		log.Printf("fixctl: logout did not complete within 5s, closing anyway")
	}
}

// waitForActive polls until the session reaches Active or the context is
// cancelled, logging the transition once.
func waitForActive(ctx context.Context, sess *fixapi.Session) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sess.State() == session.Active {
				log.Printf("fixctl: session %s is Active", sess.ID())
				return
			}
		}
	}
}

// loggingApp dumps every inbound application message's MsgType to the log;
// a real caller supplies its own fixapi.ApplicationHandler instead.
type loggingApp struct{}

func (loggingApp) OnMessage(sessionID string, fields wire.FieldList) {
	msgType, _ := fields.Get(wire.TagMsgType)
	log.Printf("fixctl: session %s received application message type %s", sessionID, msgType)
}

// fatalObserver logs and unwinds the run loop when the session hits a
// condition the state machine considers unrecoverable.
type fatalObserver struct {
	cancel context.CancelFunc
}

func (o *fatalObserver) OnFatal(sessionID, reason string) {
	log.Printf("fixctl: session %s fatal: %s", sessionID, reason)
	o.cancel()
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
