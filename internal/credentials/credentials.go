// Package credentials provides encrypted at-rest storage for the optional
// Logon username/password pair a Session Record may carry, with a status
// lifecycle (active/revoked/expired/suspended) independent of the session's
// own connectivity state. A session either has no credential (CompID-only
// Logon) or exactly one, addressed by SessionID — re-issuing rotates it
// rather than colliding with a prior issue the way a per-user account would.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

// Status is the lifecycle state of a stored credential.
type Status string

const (
	StatusActive    Status = "active"
	StatusRevoked   Status = "revoked"
	StatusExpired   Status = "expired"
	StatusSuspended Status = "suspended"
)

const (
	keyIterations = 100000
	keySaltLabel  = "fix-session-credential-salt-v1"
)

// Credential is one session's encrypted Logon password plus the metadata
// needed to validate and audit its use.
type Credential struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id"`
	SenderCompID string     `json:"sender_comp_id"`
	TargetCompID string     `json:"target_comp_id"`
	Password     string     `json:"password"` // AES-GCM sealed, base64
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// AuditLogger receives a record of every credential operation, successful
// or not, for compliance trails.
type AuditLogger interface {
	LogCredentialOperation(operation, sessionID, details string, success bool)
}

type nopAuditLogger struct{}

func (nopAuditLogger) LogCredentialOperation(string, string, string, bool) {}

// sealer derives one AES-GCM key from the store's master password and
// seals/opens credential secrets with it. Splitting this out of Store keeps
// the CRUD surface free of cipher plumbing.
type sealer struct {
	key []byte
}

func newSealer(masterPassword string) *sealer {
	return &sealer{key: pbkdf2.Key([]byte(masterPassword), []byte(keySaltLabel), keyIterations, 32, sha256.New)}
}

func (s *sealer) seal(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *sealer) open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("credentials: ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Store manages the optional Logon credential bound to each Session Record,
// persisted to a single JSON file under storePath.
type Store struct {
	storePath   string
	sealer      *sealer
	credentials map[string]*Credential // sessionID -> credential
	mu          sync.RWMutex
	audit       AuditLogger
}

// Open loads (or initializes) a credential store at storePath, deriving its
// encryption key from masterPassword via PBKDF2-SHA256.
func Open(storePath, masterPassword string, audit AuditLogger) (*Store, error) {
	if audit == nil {
		audit = nopAuditLogger{}
	}
	s := &Store{
		storePath:   storePath,
		sealer:      newSealer(masterPassword),
		credentials: make(map[string]*Credential),
		audit:       audit,
	}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("credentials: loading store: %w", err)
	}
	return s, nil
}

// Issue binds a new Logon credential to sessionID, returning it with the
// plaintext password populated — the only time it is visible. A session
// that already carries an active credential has it superseded: credential
// material is mutable session state, not a scarce resource that must be
// explicitly revoked before it can be reissued.
func (s *Store) Issue(sessionID, senderCompID, targetCompID string, expiresIn *time.Duration) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	password := generateSecret(32)
	sealed, err := s.sealer.seal(password)
	if err != nil {
		s.audit.LogCredentialOperation("issue_failed", sessionID, "encryption failed", false)
		return nil, fmt.Errorf("credentials: encrypting password: %w", err)
	}

	now := time.Now()
	cred := &Credential{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		SenderCompID: senderCompID,
		TargetCompID: targetCompID,
		Password:     sealed,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if expiresIn != nil {
		expiresAt := now.Add(*expiresIn)
		cred.ExpiresAt = &expiresAt
	}

	previous := s.credentials[sessionID]
	s.credentials[sessionID] = cred
	if err := s.save(); err != nil {
		if previous != nil {
			s.credentials[sessionID] = previous
		} else {
			delete(s.credentials, sessionID)
		}
		s.audit.LogCredentialOperation("issue_failed", sessionID, "save failed", false)
		return nil, fmt.Errorf("credentials: saving: %w", err)
	}

	detail := fmt.Sprintf("sender=%s", senderCompID)
	if previous != nil && previous.Status == StatusActive {
		detail = fmt.Sprintf("sender=%s supersedes=%s", senderCompID, previous.ID)
	}
	s.audit.LogCredentialOperation("issue_success", sessionID, detail, true)

	result := *cred
	result.Password = password
	return &result, nil
}

// Get returns the credential bound to sessionID, with Password still
// sealed, or ok=false if the session carries none.
func (s *Store) Get(sessionID string) (*Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[sessionID]
	return cred, ok
}

// Validate checks a Logon attempt's SenderCompID/password against the
// store, enforcing status and expiry, and records LastUsedAt on success.
func (s *Store) Validate(senderCompID, password string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cred := range s.credentials {
		if cred.SenderCompID != senderCompID {
			continue
		}
		if cred.ExpiresAt != nil && time.Now().After(*cred.ExpiresAt) && cred.Status == StatusActive {
			cred.Status = StatusExpired
		}
		if cred.Status != StatusActive {
			s.audit.LogCredentialOperation("validate_failed", cred.SessionID, fmt.Sprintf("status=%s", cred.Status), false)
			return nil, fmt.Errorf("credentials: credential is %s", cred.Status)
		}
		plain, err := s.sealer.open(cred.Password)
		if err != nil {
			s.audit.LogCredentialOperation("validate_failed", cred.SessionID, "decryption failed", false)
			return nil, errors.New("credentials: unable to validate")
		}
		if plain != password {
			s.audit.LogCredentialOperation("validate_failed", cred.SessionID, "password mismatch", false)
			return nil, errors.New("credentials: invalid credentials")
		}
		now := time.Now()
		cred.LastUsedAt = &now
		s.audit.LogCredentialOperation("validate_success", cred.SessionID, senderCompID, true)
		return cred, nil
	}

	s.audit.LogCredentialOperation("validate_failed", "unknown", fmt.Sprintf("sender=%s", senderCompID), false)
	return nil, errors.New("credentials: invalid credentials")
}

// transitions lists the statuses SetStatus accepts moving away from a given
// current status; revocation is reachable from any status, the others only
// from their natural predecessor.
var transitions = map[Status][]Status{
	StatusActive:    {StatusSuspended, StatusRevoked},
	StatusSuspended: {StatusActive, StatusRevoked},
	StatusExpired:   {StatusRevoked},
}

// SetStatus drives the credential bound to sessionID through one lifecycle
// transition (suspend, reactivate, revoke, ...), rejecting moves the
// transition table doesn't allow from its current status.
func (s *Store) SetStatus(sessionID string, status Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[sessionID]
	if !ok {
		return errors.New("credentials: not found")
	}
	allowed := false
	for _, next := range transitions[cred.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("credentials: cannot move a credential with status %s to %s", cred.Status, status)
	}

	now := time.Now()
	cred.Status = status
	cred.UpdatedAt = now
	if status == StatusRevoked {
		cred.RevokedAt = &now
	}

	op := "set_status_" + string(status)
	if err := s.save(); err != nil {
		s.audit.LogCredentialOperation(op+"_failed", sessionID, reason, false)
		return fmt.Errorf("credentials: saving: %w", err)
	}
	s.audit.LogCredentialOperation(op+"_success", sessionID, reason, true)
	return nil
}

// Rotate replaces sessionID's credential password in place, preserving its
// status and ID, and returns the new plaintext.
func (s *Store) Rotate(sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[sessionID]
	if !ok {
		s.audit.LogCredentialOperation("rotate_failed", sessionID, "not found", false)
		return "", errors.New("credentials: not found")
	}

	newPassword := generateSecret(32)
	sealed, err := s.sealer.seal(newPassword)
	if err != nil {
		s.audit.LogCredentialOperation("rotate_failed", sessionID, "encryption failed", false)
		return "", fmt.Errorf("credentials: encrypting: %w", err)
	}
	cred.Password = sealed
	cred.UpdatedAt = time.Now()
	if err := s.save(); err != nil {
		s.audit.LogCredentialOperation("rotate_failed", sessionID, "save failed", false)
		return "", fmt.Errorf("credentials: saving: %w", err)
	}
	s.audit.LogCredentialOperation("rotate_success", sessionID, "password rotated", true)
	return newPassword, nil
}

func (s *Store) save() error {
	dir := filepath.Dir(s.storePath)
	if dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(s.credentials, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.storePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.storePath)
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.storePath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &s.credentials)
}

func generateSecret(n int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}
