package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/repopulse/pulseflow/pkg/models"
)

// TokenUsageRepository appends usage facts to a JSONL file, one record per
// line. The file is append-only; the mutex serializes concurrent writers
// since plain file appends are not atomic across goroutines.
type TokenUsageRepository struct {
	mu   sync.Mutex
	root string
}

// NewTokenUsageRepository creates a new token usage repository.
func NewTokenUsageRepository(root string) *TokenUsageRepository {
	return &TokenUsageRepository{root: root}
}

func (tr *TokenUsageRepository) filePath() string {
	return path.Join(tr.root, "token_usage.jsonl")
}

// Append writes one usage record.
func (tr *TokenUsageRepository) Append(_ context.Context, record models.TokenUsageRecord) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if err := os.MkdirAll(tr.root, 0750); err != nil {
		return fmt.Errorf("failed to create usage directory: %w", err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal usage record %s: %w", record.RequestID, err)
	}

	f, err := os.OpenFile(tr.filePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open usage file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append usage record: %w", err)
	}

	return nil
}

// ListByExecution scans the usage file for records of one execution.
func (tr *TokenUsageRepository) ListByExecution(_ context.Context, executionID string) ([]models.TokenUsageRecord, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	f, err := os.Open(tr.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return []models.TokenUsageRecord{}, nil
		}

		return nil, fmt.Errorf("failed to open usage file: %w", err)
	}
	defer f.Close()

	records := make([]models.TokenUsageRecord, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		var record models.TokenUsageRecord

		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal usage record: %w", err)
		}

		if record.ExecutionID == executionID {
			records = append(records, record)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan usage file: %w", err)
	}

	return records, nil
}
