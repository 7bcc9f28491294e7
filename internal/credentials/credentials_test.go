package credentials

import (
	"path/filepath"
	"testing"
	"time"
)

type recordingAudit struct {
	events []string
}

func (r *recordingAudit) LogCredentialOperation(operation, sessionID, details string, success bool) {
	r.events = append(r.events, operation)
}

func newTestStore(t *testing.T) (*Store, *recordingAudit) {
	t.Helper()
	audit := &recordingAudit{}
	store, err := Open(filepath.Join(t.TempDir(), "credentials.json"), "test-master-password", audit)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return store, audit
}

func TestIssueReturnsPlaintextPasswordOnce(t *testing.T) {
	store, _ := newTestStore(t)

	cred, err := store.Issue("SESSION1", "SNDR", "TARGET", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if cred.Password == "" {
		t.Fatal("expected a plaintext password on issue")
	}

	stored, ok := store.Get("SESSION1")
	if !ok {
		t.Fatal("Get() found no credential for SESSION1")
	}
	if stored.Password == cred.Password {
		t.Fatal("stored credential must hold the sealed password, not plaintext")
	}
}

func TestGetReportsNoCredentialForAnUnboundSession(t *testing.T) {
	store, _ := newTestStore(t)
	if _, ok := store.Get("NOBODY"); ok {
		t.Fatal("expected Get to report no credential for a session that was never issued one")
	}
}

func TestIssueOnAnAlreadyActiveSessionSupersedesIt(t *testing.T) {
	store, _ := newTestStore(t)
	first, err := store.Issue("SESSION1", "SNDR", "TARGET", nil)
	if err != nil {
		t.Fatalf("first Issue() error = %v", err)
	}
	second, err := store.Issue("SESSION1", "SNDR", "TARGET", nil)
	if err != nil {
		t.Fatalf("second Issue() error = %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a re-issue to mint a new credential ID")
	}
	if _, err := store.Validate("SNDR", first.Password); err == nil {
		t.Fatal("expected the superseded credential's password to be rejected")
	}
	if _, err := store.Validate("SNDR", second.Password); err != nil {
		t.Fatalf("Validate() with the current password error = %v", err)
	}
}

func TestValidateRoundTrips(t *testing.T) {
	store, _ := newTestStore(t)
	cred, err := store.Issue("SESSION1", "SNDR", "TARGET", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := store.Validate("SNDR", cred.Password); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if _, err := store.Validate("SNDR", "wrong-password"); err == nil {
		t.Fatal("expected an error validating the wrong password")
	}
	if _, err := store.Validate("NOBODY", cred.Password); err == nil {
		t.Fatal("expected an error validating an unknown SenderCompID")
	}
}

func TestValidateRejectsRevoked(t *testing.T) {
	store, _ := newTestStore(t)
	cred, _ := store.Issue("SESSION1", "SNDR", "TARGET", nil)
	if err := store.SetStatus("SESSION1", StatusRevoked, "offboarding"); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if _, err := store.Validate("SNDR", cred.Password); err == nil {
		t.Fatal("expected Validate to reject a revoked credential")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	store, _ := newTestStore(t)
	past := -1 * time.Hour
	cred, err := store.Issue("SESSION1", "SNDR", "TARGET", &past)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := store.Validate("SNDR", cred.Password); err == nil {
		t.Fatal("expected Validate to reject an already-expired credential")
	}
}

func TestSetStatusSuspendAndReactivate(t *testing.T) {
	store, _ := newTestStore(t)
	cred, _ := store.Issue("SESSION1", "SNDR", "TARGET", nil)

	if err := store.SetStatus("SESSION1", StatusSuspended, "manual hold"); err != nil {
		t.Fatalf("SetStatus(suspended) error = %v", err)
	}
	if _, err := store.Validate("SNDR", cred.Password); err == nil {
		t.Fatal("expected Validate to reject a suspended credential")
	}

	if err := store.SetStatus("SESSION1", StatusActive, "hold lifted"); err != nil {
		t.Fatalf("SetStatus(active) error = %v", err)
	}
	if _, err := store.Validate("SNDR", cred.Password); err != nil {
		t.Fatalf("Validate() after reactivation error = %v", err)
	}
}

func TestSetStatusRejectsDisallowedTransition(t *testing.T) {
	store, _ := newTestStore(t)
	store.Issue("SESSION1", "SNDR", "TARGET", nil)
	if err := store.SetStatus("SESSION1", StatusActive, "noop"); err == nil {
		t.Fatal("expected reactivating an already-active credential to be rejected")
	}
	if err := store.SetStatus("SESSION1", StatusRevoked, "done"); err != nil {
		t.Fatalf("SetStatus(revoked) error = %v", err)
	}
	if err := store.SetStatus("SESSION1", StatusSuspended, "too late"); err == nil {
		t.Fatal("expected suspending a revoked credential to be rejected")
	}
}

func TestRotateInvalidatesTheOldPassword(t *testing.T) {
	store, _ := newTestStore(t)
	cred, _ := store.Issue("SESSION1", "SNDR", "TARGET", nil)

	newPassword, err := store.Rotate("SESSION1")
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if newPassword == cred.Password {
		t.Fatal("expected a different password after rotation")
	}
	if _, err := store.Validate("SNDR", cred.Password); err == nil {
		t.Fatal("expected the old password to be rejected after rotation")
	}
	if _, err := store.Validate("SNDR", newPassword); err != nil {
		t.Fatalf("Validate() with the new password error = %v", err)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	store1, err := Open(path, "test-master-password", nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	cred, err := store1.Issue("SESSION1", "SNDR", "TARGET", nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	store2, err := Open(path, "test-master-password", nil)
	if err != nil {
		t.Fatalf("reopening Open() error = %v", err)
	}
	if _, err := store2.Validate("SNDR", cred.Password); err != nil {
		t.Fatalf("Validate() after reopen error = %v", err)
	}
}
