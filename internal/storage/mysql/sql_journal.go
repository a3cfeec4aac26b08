package mysql

import (
	"context"
	"database/sql"
	"errors"

	gomysql "github.com/go-sql-driver/mysql"

	xerrors "BasicAgent-Console/internal/errors"
)

// errDuplicateEntry 是 MySQL 的主键冲突错误号。
const errDuplicateEntry = 1062

// SQLJournal 使用 MySQL 存储提交日志。
type SQLJournal struct {
	db *sql.DB
}

// NewSQLJournal 建立连接池并执行嵌入的迁移脚本。
func NewSQLJournal(ctx context.Context, cfg Config) (*SQLJournal, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	journal := &SQLJournal{db: db}
	if err := journal.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return journal, nil
}

const insertJournalSQL = `INSERT INTO dispatch_journal
    (id, contract_address, wallet_address, payload, tx_hash, block_number, outcome, message, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Append 写入一条提交记录。相同 ID 重复写入视为已记录。
func (s *SQLJournal) Append(ctx context.Context, entry JournalEntry) error {
	entry = prepare(entry)
	_, err := s.db.ExecContext(ctx, insertJournalSQL,
		entry.ID,
		entry.Contract,
		entry.Wallet,
		entry.Payload,
		entry.TxHash,
		entry.BlockNumber,
		entry.Outcome,
		entry.Message,
		entry.CreatedAt,
	)
	if err != nil {
		var mysqlErr *gomysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry {
			return nil
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入提交日志失败")
	}
	return nil
}

const listJournalSQL = `SELECT id, contract_address, wallet_address, payload, tx_hash, block_number, outcome, message, created_at
    FROM dispatch_journal ORDER BY created_at DESC, id DESC LIMIT ?`

// ListLatest 查询最近的若干条提交记录。
func (s *SQLJournal) ListLatest(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, listJournalSQL, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询提交日志失败")
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var entry JournalEntry
		if err := rows.Scan(&entry.ID, &entry.Contract, &entry.Wallet, &entry.Payload, &entry.TxHash, &entry.BlockNumber, &entry.Outcome, &entry.Message, &entry.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析提交记录失败")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历提交记录失败")
	}
	return entries, nil
}

// Close 关闭底层数据库连接。
func (s *SQLJournal) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var (
	_ Journal = (*FileJournal)(nil)
	_ Journal = (*SQLJournal)(nil)
)
