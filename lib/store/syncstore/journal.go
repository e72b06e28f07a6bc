package syncstore

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ValentinKolb/sKV/lib/store/oplog"
)

// Journal persists the pending queue of a sync store so that ops which were applied
// locally but not yet replicated survive a restart.
//
// The sync store calls Append for every enqueued op (in queue order) and Ack whenever
// the op at the head of the queue was replicated or dropped.
type Journal interface {
	// Load returns the pending (appended but not acknowledged) ops in queue order.
	Load() ([]oplog.Op, error)
	// Append persists an op at the tail of the queue.
	Append(op oplog.Op) error
	// Ack marks the op at the head of the queue as done.
	Ack() error
	// Close releases the journal.
	Close() error
}

// --------------------------------------------------------------------------
// File Journal
// --------------------------------------------------------------------------

const (
	recordKindOp  byte = 1
	recordKindAck byte = 2

	recordHeaderSize = 4 + 4 // length + checksum
	maxRecordSize    = 1 << 30
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// FileJournal is an append-only Journal in a single file.
//
// Every record is encoded as
//
//	length u32 | crc32c u32 | kind u8 | payload
//
// where length and checksum cover kind and payload. An op record carries a serialized
// oplog.Op, an ack record has no payload. Since acks always refer to the head of the
// queue, the pending ops are the op records after skipping as many op records as there
// are acks. A torn or corrupt tail (e.g. after a crash during a write) is cut off on load.
//
// The file is rewritten with only the pending ops on load and truncated whenever every
// appended op was acknowledged.
type FileJournal struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	sync     bool
	appended int // op records in the file
	acked    int // ack records in the file
}

// OpenFileJournal opens (or creates) the journal file at path.
// If syncWrites is set, every record is fsynced before Append and Ack return.
func OpenFileJournal(path string, syncWrites bool) (*FileJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return &FileJournal{
		path: path,
		file: file,
		sync: syncWrites,
	}, nil
}

// Path returns the location of the journal file.
func (j *FileJournal) Path() string {
	return j.path
}

// Load reads the pending ops and compacts the file.
func (j *FileJournal) Load() ([]oplog.Op, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var (
		ops  []oplog.Op
		acks int
	)

	r := bufio.NewReader(j.file)
readLoop:
	for {
		kind, payload, err := readRecord(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				Logger.Warningf("journal %s: dropping corrupt tail: %v", j.path, err)
			}
			break readLoop
		}

		switch kind {
		case recordKindOp:
			var op oplog.Op
			if err := op.Deserialize(payload); err != nil {
				Logger.Warningf("journal %s: dropping corrupt tail: %v", j.path, err)
				break readLoop
			}
			ops = append(ops, op)
		case recordKindAck:
			acks++
		default:
			Logger.Warningf("journal %s: dropping corrupt tail: unknown record kind %d", j.path, kind)
			break readLoop
		}
	}

	if acks > len(ops) {
		return nil, fmt.Errorf("journal %s: %d acks for %d ops", j.path, acks, len(ops))
	}
	pending := ops[acks:]

	if err := j.rewrite(pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// rewrite replaces the file with one that contains only ops (temp file + rename)
func (j *FileJournal) rewrite(ops []oplog.Op) error {
	tmpPath := j.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("create compacted journal: %w", err)
	}

	w := bufio.NewWriter(tmp)
	for _, op := range ops {
		if _, err := w.Write(encodeRecord(recordKindOp, op.Serialize())); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := os.Rename(tmpPath, j.path); err != nil {
		tmp.Close()
		return fmt.Errorf("replace journal: %w", err)
	}

	j.file.Close()
	j.file = tmp
	j.appended = len(ops)
	j.acked = 0

	_, err = j.file.Seek(0, io.SeekEnd)
	return err
}

// Append writes an op record.
func (j *FileJournal) Append(op oplog.Op) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.write(encodeRecord(recordKindOp, op.Serialize())); err != nil {
		return err
	}
	j.appended++
	return nil
}

// Ack writes an ack record. Once every op is acknowledged the file is truncated.
func (j *FileJournal) Ack() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.acked >= j.appended {
		return fmt.Errorf("journal %s: ack without pending op", j.path)
	}

	if j.acked+1 == j.appended {
		// queue is empty now
		if err := j.file.Truncate(0); err != nil {
			return err
		}
		if _, err := j.file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		j.appended, j.acked = 0, 0
		if j.sync {
			return j.file.Sync()
		}
		return nil
	}

	if err := j.write(encodeRecord(recordKindAck, nil)); err != nil {
		return err
	}
	j.acked++
	return nil
}

// Close closes the journal file.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

func (j *FileJournal) write(record []byte) error {
	if j.file == nil {
		return os.ErrClosed
	}
	if _, err := j.file.Write(record); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	if j.sync {
		return j.file.Sync()
	}
	return nil
}

// --------------------------------------------------------------------------
// Record encoding
// --------------------------------------------------------------------------

func encodeRecord(kind byte, payload []byte) []byte {
	record := make([]byte, recordHeaderSize+1+len(payload))
	body := record[recordHeaderSize:]
	body[0] = kind
	copy(body[1:], payload)

	binary.BigEndian.PutUint32(record[0:4], uint32(len(body)))
	binary.BigEndian.PutUint32(record[4:8], crc32.Checksum(body, crcTable))
	return record
}

// readRecord returns io.EOF at a clean end of the file and another error for a torn or corrupt record
func readRecord(r io.Reader) (byte, []byte, error) {
	var header [recordHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("torn record header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[0:4])
	if length == 0 || length > maxRecordSize {
		return 0, nil, fmt.Errorf("invalid record length %d", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, fmt.Errorf("torn record body: %w", err)
	}
	if crc32.Checksum(body, crcTable) != binary.BigEndian.Uint32(header[4:8]) {
		return 0, nil, errors.New("checksum mismatch")
	}

	return body[0], body[1:], nil
}
