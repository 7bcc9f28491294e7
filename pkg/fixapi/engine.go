// Package fixapi is the public facade over the engine's internal
// packages: an Engine owns the process-wide credential store and audit
// log, and hands out Sessions that wrap one Orchestrator each, exposing
// both a blocking send and the underlying event loop.
package fixapi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/epic1st/rtx/fixengine/internal/config"
	"github.com/epic1st/rtx/fixengine/internal/credentials"
	"github.com/epic1st/rtx/fixengine/internal/fixdict"
	"github.com/epic1st/rtx/fixengine/internal/logging"
	"github.com/epic1st/rtx/fixengine/internal/orchestrator"
	"github.com/epic1st/rtx/fixengine/internal/sequence"
	"github.com/epic1st/rtx/fixengine/internal/session"
	"github.com/epic1st/rtx/fixengine/internal/store"
	"github.com/epic1st/rtx/fixengine/internal/wire"
)

// ApplicationHandler is the callback the host application implements to
// receive decoded inbound application messages.
type ApplicationHandler = orchestrator.ApplicationHandler

// Observer is notified of fatal session conditions.
type Observer = orchestrator.Observer

// Transport is the bidirectional byte stream a Session runs over.
type Transport = orchestrator.Transport

// FieldList and Field are re-exported so callers can build outbound
// messages without importing internal/wire directly.
type FieldList = wire.FieldList
type Field = wire.Field

// Engine owns the resources shared by every session it runs: encrypted
// credential storage and the append-only audit trail.
type Engine struct {
	cfg   config.EngineConfig
	creds *credentials.Store
	audit *logging.AuditLogger
	log   *logging.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// New constructs an Engine from EngineConfig, opening its audit log and
// encrypted credential store.
func New(cfg config.EngineConfig) (*Engine, error) {
	audit, err := logging.NewAuditLogger(cfg.AuditLogDirectory)
	if err != nil {
		return nil, fmt.Errorf("fixapi: opening audit log: %w", err)
	}
	creds, err := credentials.Open(cfg.CredentialStorePath, cfg.CredentialMasterPass, audit)
	if err != nil {
		return nil, fmt.Errorf("fixapi: opening credential store: %w", err)
	}

	return &Engine{
		cfg:      cfg,
		creds:    creds,
		audit:    audit,
		log:      logging.New(logging.INFO, os.Stdout),
		sessions: make(map[string]*Session),
	}, nil
}

// Credentials exposes the engine's encrypted Logon credential store.
func (e *Engine) Credentials() *credentials.Store { return e.creds }

// Close releases the engine's process-wide resources. It does not close
// any Session; callers close sessions individually as they tear down.
func (e *Engine) Close() error {
	return e.audit.Close()
}

// NewSession opens (or resumes) sessCfg's message store, restores its
// sequence state if the store has any, and wires the result to transport
// and app.
func (e *Engine) NewSession(ctx context.Context, sessCfg config.SessionConfig, app ApplicationHandler, obs Observer) (*Session, error) {
	st, err := openStore(ctx, sessCfg)
	if err != nil {
		return nil, fmt.Errorf("fixapi: opening store for session %s: %w", sessCfg.SessionID, err)
	}

	seq := sequence.NewManager()
	if loader, ok := st.(interface {
		LoadSequenceState() (nextIn, nextOut uint64, err error)
	}); ok {
		if nextIn, nextOut, loadErr := loader.LoadSequenceState(); loadErr == nil && (nextIn > 1 || nextOut > 1) {
			seq = sequence.Restore(nextIn, nextOut)
		}
	}

	orchCfg := orchestrator.Config{
		SessionID:    sessCfg.SessionID,
		BeginString:  sessCfg.BeginString,
		SenderCompID: sessCfg.Sender,
		TargetCompID: sessCfg.Target,
		HeartBtInt:   sessCfg.HeartBtInt,
		Acceptor:     sessCfg.Acceptor,
	}
	orch := orchestrator.New(orchCfg, fixdict.NewStaticDictionary(), st, seq, app, obs)

	sess := &Session{id: sessCfg.SessionID, orch: orch, store: st}

	e.mu.Lock()
	e.sessions[sessCfg.SessionID] = sess
	e.mu.Unlock()

	e.log.Info("session created", logging.SessionID(sessCfg.SessionID))
	return sess, nil
}

// Session looks up a previously created session by ID.
func (e *Engine) Session(sessionID string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions[sessionID]
	return sess, ok
}

func openStore(ctx context.Context, cfg config.SessionConfig) (store.MessageStore, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		rc := store.DefaultRedisConfig()
		rc.Address = cfg.StoreRedisDSN
		return store.OpenRedisStore(ctx, rc, cfg.SessionID)
	case config.StoreBackendPostgres:
		return store.OpenPostgresStore(ctx, cfg.StorePostgresDSN, cfg.SessionID)
	default:
		dir := cfg.StoreDirectory
		if dir == "" {
			dir = "."
		}
		return store.OpenFileStore(filepath.Join(dir, cfg.SessionID))
	}
}

// Session wraps one session's Orchestrator, giving callers both a
// blocking send and the underlying event loop.
type Session struct {
	id    string
	orch  *orchestrator.Orchestrator
	store store.MessageStore
}

// ID returns the session's identity string.
func (s *Session) ID() string { return s.id }

// Attach binds a live Transport and begins the logon handshake.
func (s *Session) Attach(t Transport) { s.orch.Attach(t) }

// Run drives the session's event loop until ctx is cancelled or the
// transport closes.
func (s *Session) Run(ctx context.Context) error { return s.orch.Run(ctx) }

// SendAndWait transmits an application message and returns once it has
// been durably stored and written to the transport, per the Application
// interface's send-handle contract. It returns an error when the message
// was not stored.
func (s *Session) SendAndWait(ctx context.Context, msgType string, fields FieldList) error {
	return s.orch.Send(ctx, msgType, fields)
}

// Disconnect tears the session down. The orchestrator has no outbound
// queue, so graceful and abrupt disconnects take the same steps.
func (s *Session) Disconnect(graceful bool) { s.orch.Disconnect(graceful) }

// State returns the session's current state, for diagnostics.
func (s *Session) State() session.State { return s.orch.State() }

// Close releases the session's store resources. The session must not be
// used afterward.
func (s *Session) Close() error { return s.store.Close() }
