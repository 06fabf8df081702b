package eventstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nathanyu/mini-ledger/internal/domain"
)

// batch is one journal line: every event produced by a single commit.
type batch struct {
	CommittedAt time.Time              `json:"committed_at"`
	Events      []domain.EventEnvelope `json:"events"`
}

// EventStore is an append-only journal of committed ledger batches.
// Each batch occupies exactly one line, so a crash mid-write can only
// leave a torn final line, which is discarded on open.
type EventStore struct {
	filePath string
	file     *os.File
	mu       sync.Mutex
}

// NewEventStore opens (or creates) the journal at filePath and drops any
// torn trailing line left by an interrupted write.
func NewEventStore(filePath string) (*EventStore, error) {
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	if err := recoverTail(filePath); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event store file: %w", err)
	}

	return &EventStore{
		filePath: filePath,
		file:     file,
	}, nil
}

// AppendBatch writes all events of one commit as a single line and syncs.
// Either every event of the batch is replayed later or none is.
func (s *EventStore) AppendBatch(events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	b := batch{
		CommittedAt: time.Now().UTC(),
		Events:      make([]domain.EventEnvelope, 0, len(events)),
	}
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize event: %w", err)
		}
		b.Events = append(b.Events, domain.EventEnvelope{
			Type:      event.GetType(),
			Timestamp: b.CommittedAt,
			Data:      data,
		})
	}

	line, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to serialize batch: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return errors.New("event store is closed")
	}

	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}

	// Ensure durability
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync event store: %w", err)
	}

	return nil
}

// Replay calls fn once per committed batch, in commit order.
func (s *EventStore) Replay(fn func([]domain.Event) error) error {
	file, err := os.Open(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open event store for reading: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	// Increase buffer size for potentially large batches
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		events, err := decodeBatch(line)
		if err != nil {
			return fmt.Errorf("failed to deserialize batch at line %d: %w", lineNum, err)
		}
		if err := fn(events); err != nil {
			return fmt.Errorf("failed to apply batch at line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading event store: %w", err)
	}

	return nil
}

// Close closes the event store file
func (s *EventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

func decodeBatch(line []byte) ([]domain.Event, error) {
	var b batch
	if err := json.Unmarshal(line, &b); err != nil {
		return nil, err
	}
	events := make([]domain.Event, 0, len(b.Events))
	for _, env := range b.Events {
		event, err := env.Decode()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// recoverTail truncates the journal after its last complete, decodable line.
// Only the final line may be damaged; anything earlier is reported as corruption.
func recoverTail(filePath string) error {
	file, err := os.OpenFile(filePath, os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open event store for recovery: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var good int64
	lineNum := 0
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			lineNum++
			complete := line[len(line)-1] == '\n'
			trimmed := bytes.TrimSpace(line)
			var decodeErr error
			if len(trimmed) > 0 {
				_, decodeErr = decodeBatch(trimmed)
			}

			if complete && decodeErr == nil {
				good += int64(len(line))
			} else {
				// A damaged line is tolerated only at the very end of the file.
				if _, peekErr := reader.Peek(1); peekErr != io.EOF {
					return fmt.Errorf("event store corrupted at line %d", lineNum)
				}
				slog.Warn("discarding torn journal tail",
					"path", filePath,
					"line", lineNum,
					"bytes", len(line),
				)
				if err := file.Truncate(good); err != nil {
					return fmt.Errorf("failed to truncate torn journal tail: %w", err)
				}
				return file.Sync()
			}
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("error reading event store: %w", readErr)
		}
	}
}
