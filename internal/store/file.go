package store

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	activeLogName  = "messages.log"
	sealedLogName  = "messages.sealed.zst"
	sequenceFile   = "sequence.json"
	sequenceTmpExt = ".tmp"
)

// sequenceState mirrors the on-disk sequence file: {next_in, next_out,
// creation_time}.
type sequenceState struct {
	NextIn       uint64    `json:"next_in"`
	NextOut      uint64    `json:"next_out"`
	CreationTime time.Time `json:"creation_time"`
}

// FileStore is a file-backed MessageStore. It writes length-prefixed
// records of {seq uint64, bytes} to an append-only active log, and
// separately persists a sequence file of {next_in, next_out, creation_time}
// so that NextIn/NextOut survive a restart without a full log replay in the
// common case. On open, the log is the source of truth: if it disagrees
// with the sequence file, the log wins and the sequence file is repaired.
//
// When ResetTo truncates the active log, the old contents are
// zstd-compressed (with an encoder created once at open) and appended to a
// sealed segment file. GetRange reads only the active log; sealed segments
// are not read back.
type FileStore struct {
	dir string

	mu      sync.Mutex
	logFile *os.File
	lastSeq uint64
	created time.Time
	// offsets maps seq -> byte offset of its record in the active log, so
	// GetRange doesn't need a full linear scan for a warm store.
	offsets map[uint64]int64

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
}

// OpenFileStore opens (or creates) a file store rooted at dir.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating directory %s: %w", dir, err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("store: creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("store: creating zstd decoder: %w", err)
	}

	fs := &FileStore{
		dir:         dir,
		offsets:     make(map[uint64]int64),
		zstdEncoder: enc,
		zstdDecoder: dec,
	}

	f, err := os.OpenFile(filepath.Join(dir, activeLogName), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: opening log: %w", err)
	}
	fs.logFile = f

	if err := fs.replayLog(); err != nil {
		f.Close()
		return nil, err
	}
	if err := fs.reconcileSequenceFile(); err != nil {
		f.Close()
		return nil, err
	}
	return fs, nil
}

// replayLog scans the active log once at open time, building the
// seq->offset index and establishing lastSeq from the log itself (the
// authority, per the store contract).
func (fs *FileStore) replayLog() error {
	if _, err := fs.logFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("store: seeking log: %w", err)
	}
	r := bufio.NewReader(fs.logFile)
	var offset int64
	for {
		rec, n, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("store: corrupt log at offset %d: %w", offset, err)
		}
		fs.offsets[rec.Seq] = offset
		if rec.Seq > fs.lastSeq {
			fs.lastSeq = rec.Seq
		}
		offset += int64(n)
	}
	if _, err := fs.logFile.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("store: seeking to log end: %w", err)
	}
	return nil
}

// reconcileSequenceFile cross-checks the persisted sequence file against
// what the log replay found. Per the store contract, the log is always
// trusted; a disagreeing sequence file is repaired in place.
func (fs *FileStore) reconcileSequenceFile() error {
	seq, err := fs.loadSequenceFile()
	if err != nil {
		fs.created = time.Now().UTC()
		return fs.writeSequenceFile(sequenceState{
			NextIn:       1,
			NextOut:      fs.lastSeq + 1,
			CreationTime: fs.created,
		})
	}
	fs.created = seq.CreationTime
	if seq.NextOut != fs.lastSeq+1 {
		seq.NextOut = fs.lastSeq + 1
		return fs.writeSequenceFile(seq)
	}
	return nil
}

func (fs *FileStore) loadSequenceFile() (sequenceState, error) {
	b, err := os.ReadFile(filepath.Join(fs.dir, sequenceFile))
	if err != nil {
		return sequenceState{}, err
	}
	var s sequenceState
	if err := json.Unmarshal(b, &s); err != nil {
		return sequenceState{}, err
	}
	return s, nil
}

// writeSequenceFile persists seq atomically: write to a temp file, fsync,
// then rename over the live file, so a crash mid-write never leaves a
// truncated sequence file behind.
func (fs *FileStore) writeSequenceFile(seq sequenceState) error {
	b, err := json.Marshal(seq)
	if err != nil {
		return fmt.Errorf("store: marshaling sequence state: %w", err)
	}
	path := filepath.Join(fs.dir, sequenceFile)
	tmp := path + sequenceTmpExt
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("store: writing sequence temp file: %w", err)
	}
	if f, err := os.Open(tmp); err == nil {
		_ = f.Sync()
		f.Close()
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: renaming sequence file: %w", err)
	}
	return nil
}

// PersistSequenceState writes next_in/next_out to the sequence file. The
// orchestrator calls this when the state machine emits
// ActionPersistSequence (for example on disconnect or logout).
func (fs *FileStore) PersistSequenceState(nextIn, nextOut uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.writeSequenceFile(sequenceState{
		NextIn:       nextIn,
		NextOut:      nextOut,
		CreationTime: fs.created,
	})
}

// LoadSequenceState returns the persisted next_in/next_out pair.
func (fs *FileStore) LoadSequenceState() (nextIn, nextOut uint64, err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	seq, err := fs.loadSequenceFile()
	if err != nil {
		return 1, fs.lastSeq + 1, nil
	}
	return seq.NextIn, seq.NextOut, nil
}

func (fs *FileStore) Append(ctx context.Context, seq uint64, bytes []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, exists := fs.offsets[seq]; exists {
		return ErrSeqAlreadyPresent
	}
	if seq != fs.lastSeq+1 {
		return ErrSeqOutOfOrder
	}

	offset, err := fs.logFile.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("store: seeking to log end: %w", err)
	}
	if err := writeRecord(fs.logFile, Record{Seq: seq, Bytes: bytes}); err != nil {
		return fmt.Errorf("store: writing record: %w", err)
	}
	if err := fs.logFile.Sync(); err != nil {
		return fmt.Errorf("store: syncing log: %w", err)
	}

	fs.offsets[seq] = offset
	fs.lastSeq = seq
	return nil
}

func (fs *FileStore) GetRange(ctx context.Context, from, toInclusive uint64) ([]Record, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	to := toInclusive
	if to == 0 {
		to = fs.lastSeq
	}
	if from == 0 {
		from = 1
	}

	out := make([]Record, 0, to-from+1)
	for seq := from; seq <= to; seq++ {
		offset, ok := fs.offsets[seq]
		if !ok {
			return nil, fmt.Errorf("%w: sequence %d missing", ErrGap, seq)
		}
		if _, err := fs.logFile.Seek(offset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("store: seeking to record %d: %w", seq, err)
		}
		r := bufio.NewReader(fs.logFile)
		rec, _, err := readRecord(r)
		if err != nil {
			return nil, fmt.Errorf("store: reading record %d: %w", seq, err)
		}
		out = append(out, rec)
	}
	if _, err := fs.logFile.Seek(0, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("store: restoring log position: %w", err)
	}
	return out, nil
}

// ResetTo truncates the active log (sealing what existed into a
// zstd-compressed segment for audit purposes, per the teacher's
// rotate-then-compress pattern) and resets the next expected sequence.
func (fs *FileStore) ResetTo(ctx context.Context, seq uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.sealLocked(); err != nil {
		return err
	}

	if err := fs.logFile.Truncate(0); err != nil {
		return fmt.Errorf("store: truncating log: %w", err)
	}
	if _, err := fs.logFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("store: seeking log: %w", err)
	}
	fs.offsets = make(map[uint64]int64)
	fs.lastSeq = seq - 1
	fs.created = time.Now().UTC()
	return fs.writeSequenceFile(sequenceState{NextIn: seq, NextOut: seq, CreationTime: fs.created})
}

// sealLocked compresses the current active log contents and appends them to
// the sealed segment file, leaving the active log itself untouched (the
// caller truncates it afterward). Called with fs.mu held.
func (fs *FileStore) sealLocked() error {
	if _, err := fs.logFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("store: seeking log for sealing: %w", err)
	}
	raw, err := io.ReadAll(fs.logFile)
	if err != nil {
		return fmt.Errorf("store: reading log for sealing: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	compressed := fs.zstdEncoder.EncodeAll(raw, nil)

	sealedPath := filepath.Join(fs.dir, sealedLogName)
	f, err := os.OpenFile(sealedPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("store: opening sealed segment: %w", err)
	}
	defer f.Close()

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(compressed)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("store: writing sealed segment length: %w", err)
	}
	if _, err := f.Write(compressed); err != nil {
		return fmt.Errorf("store: writing sealed segment: %w", err)
	}
	return f.Sync()
}

func (fs *FileStore) LastSeq(ctx context.Context) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.lastSeq, nil
}

func (fs *FileStore) CreationTime(ctx context.Context) (time.Time, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.created, nil
}

func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.logFile.Close()
}

// writeRecord appends a length-prefixed {seq uint64, bytes} record.
func writeRecord(w io.Writer, rec Record) error {
	var header [12]byte
	binary.BigEndian.PutUint64(header[0:8], rec.Seq)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(rec.Bytes)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(rec.Bytes)
	return err
}

// readRecord reads one length-prefixed record, returning its total
// on-disk size (header + payload) for offset bookkeeping.
func readRecord(r io.Reader) (Record, int, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Record{}, 0, fmt.Errorf("truncated record header: %w", io.EOF)
		}
		return Record{}, 0, err
	}
	seq := binary.BigEndian.Uint64(header[0:8])
	length := binary.BigEndian.Uint32(header[8:12])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Record{}, 0, fmt.Errorf("truncated record payload: %w", err)
	}
	return Record{Seq: seq, Bytes: payload}, 12 + int(length), nil
}
