package mysql

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "BasicAgent-Console/internal/errors"
)

// maxMemoryEntries 是文件日志在内存中保留的最近记录数。
const maxMemoryEntries = 512

// JournalEntry 记录一次动作提交的结果。Outcome 为 "OK" 或错误码。
type JournalEntry struct {
	ID          string `json:"id"`
	Contract    string `json:"contract"`
	Wallet      string `json:"wallet"`
	Payload     string `json:"payload"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	Outcome     string `json:"outcome"`
	Message     string `json:"message,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// Journal 抽象提交日志的持久化接口。
type Journal interface {
	Append(ctx context.Context, entry JournalEntry) error
	ListLatest(ctx context.Context, limit int) ([]JournalEntry, error)
	Close() error
}

// prepare 补齐 ID 与时间戳。
func prepare(entry JournalEntry) JournalEntry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().Unix()
	}
	return entry
}

// FileJournal 以 JSON Lines 形式追加写入本地文件，适合单机调试。
type FileJournal struct {
	mu       sync.RWMutex
	dataFile string
	entries  []JournalEntry
}

// NewFileJournal 在 dataDir 下创建或恢复 dispatches.log。
func NewFileJournal(dataDir string) (*FileJournal, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	journal := &FileJournal{dataFile: filepath.Join(dataDir, "dispatches.log")}
	if err := journal.loadFromDisk(); err != nil {
		return nil, err
	}
	return journal, nil
}

// Append 以追加写的方式记录一条提交结果。
func (f *FileJournal) Append(_ context.Context, entry JournalEntry) error {
	entry = prepare(entry)

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开提交日志失败")
	}
	defer file.Close()

	encoded, err := json.Marshal(entry)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化提交记录失败")
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入提交日志失败")
	}

	f.entries = append([]JournalEntry{entry}, f.entries...)
	if len(f.entries) > maxMemoryEntries {
		f.entries = f.entries[:maxMemoryEntries]
	}
	return nil
}

// ListLatest 返回最近的提交记录，按写入顺序倒序排列。
func (f *FileJournal) ListLatest(_ context.Context, limit int) ([]JournalEntry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if limit <= 0 || limit > len(f.entries) {
		limit = len(f.entries)
	}
	results := make([]JournalEntry, limit)
	copy(results, f.entries[:limit])
	return results, nil
}

// Close 对文件日志无操作。
func (f *FileJournal) Close() error { return nil }

func (f *FileJournal) loadFromDisk() error {
	file, err := os.OpenFile(f.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取提交日志失败")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []JournalEntry
	for scanner.Scan() {
		var entry JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		restored = append([]JournalEntry{entry}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析提交日志失败")
	}
	if len(restored) > maxMemoryEntries {
		restored = restored[:maxMemoryEntries]
	}
	f.entries = restored
	return nil
}
