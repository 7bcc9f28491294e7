package logging

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLockBasic(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.log")

	lock, err := NewFileLock(testFile)
	if err != nil {
		t.Fatalf("Failed to create lock: %v", err)
	}
	if err := lock.Lock(); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Unlock(); err != nil {
		t.Errorf("Failed to unlock: %v", err)
	}
}

func TestFileLockConcurrency(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.log")

	var counter int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := NewFileLock(testFile)
			if err != nil {
				t.Errorf("Failed to create lock: %v", err)
				return
			}
			if err := lock.Lock(); err != nil {
				t.Errorf("Failed to acquire lock: %v", err)
				return
			}
			defer lock.Unlock()

			mu.Lock()
			counter++
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
		}()
	}
	wg.Wait()

	if counter != 10 {
		t.Errorf("Expected counter to be 10, got %d", counter)
	}
}

func TestConcurrentRotationDoesNotLeaveLockFiles(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.log")

	writer, err := NewRotatingFileWriter(RotationConfig{
		Filename:   testFile,
		MaxSizeMB:  1,
		MaxAge:     24 * time.Hour,
		MaxBackups: 5,
	})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			data := make([]byte, 100*1024)
			for j := 0; j < 100; j++ {
				if _, err := writer.Write(data); err != nil {
					t.Errorf("goroutine %d: write failed: %v", id, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read directory: %v", err)
	}
	lockFiles := 0
	for _, file := range files {
		if filepath.Ext(file.Name()) == ".lock" {
			lockFiles++
		}
	}
	if lockFiles > 0 {
		t.Errorf("Found %d lock files remaining - locks not properly cleaned up", lockFiles)
	}
}

func TestRotationSurvivesBurstsNearThreshold(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.log")

	writer, err := NewRotatingFileWriter(RotationConfig{
		Filename:   testFile,
		MaxSizeMB:  1,
		MaxAge:     24 * time.Hour,
		MaxBackups: 10,
	})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	var wg sync.WaitGroup
	largeData := make([]byte, 900*1024)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			writer.Write(largeData)
		}()
	}
	wg.Wait()

	if _, err := os.Stat(testFile); err != nil {
		t.Errorf("main log file missing after rotation: %v", err)
	}
}

func TestMultiWriterFansOutAndCloses(t *testing.T) {
	tmpDir := t.TempDir()
	f1, _ := os.Create(filepath.Join(tmpDir, "a.log"))
	f2, _ := os.Create(filepath.Join(tmpDir, "b.log"))

	mw := NewMultiWriter(f1, f2)
	if _, err := mw.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data1, _ := os.ReadFile(filepath.Join(tmpDir, "a.log"))
	data2, _ := os.ReadFile(filepath.Join(tmpDir, "b.log"))
	if string(data1) != "hello\n" || string(data2) != "hello\n" {
		t.Fatalf("both writers should have received the same bytes")
	}
}
