package history

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "DeFAI-Agent/internal/errors"
)

// MySQLRepository 使用 MySQL 持久化对话历史。
type MySQLRepository struct {
	db *sql.DB
}

// NewMySQLRepository 创建 MySQLRepository 并初始化表结构。
func NewMySQLRepository(dsn string) (*MySQLRepository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	repo := &MySQLRepository{db: db}
	if err := repo.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *MySQLRepository) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS chat_records (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        session_id VARCHAR(64) NOT NULL,
        message TEXT NOT NULL,
        intent VARCHAR(32) DEFAULT '',
        response MEDIUMTEXT NOT NULL,
        created_at BIGINT NOT NULL,
        INDEX idx_chat_session (session_id, created_at)
)`

	if _, err := r.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 chat_records 表失败")
	}
	return nil
}

// Append 实现 Repository 接口。
func (r *MySQLRepository) Append(ctx context.Context, record ChatRecord) error {
	if record.SessionID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话 ID 不能为空")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	const stmt = `INSERT INTO chat_records (session_id, message, intent, response, created_at)
        VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, stmt,
		record.SessionID,
		record.Message,
		record.Intent,
		record.Response,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入对话记录失败")
	}
	return nil
}

// ListBySession 按时间正序返回指定会话最近的记录。
func (r *MySQLRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]ChatRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	const stmt = `SELECT id, session_id, message, intent, response, created_at
        FROM chat_records
        WHERE session_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?`
	rows, err := r.db.QueryContext(ctx, stmt, sessionID, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询对话记录失败")
	}
	defer rows.Close()

	records := make([]ChatRecord, 0, limit)
	for rows.Next() {
		var record ChatRecord
		var createdAt int64
		if err := rows.Scan(&record.ID, &record.SessionID, &record.Message,
			&record.Intent, &record.Response, &createdAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析对话记录失败")
		}
		record.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历对话记录失败")
	}

	// 查询按时间倒序取最近 N 条，返回前翻转为正序。
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Close 关闭数据库连接。
func (r *MySQLRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

var _ Repository = (*MySQLRepository)(nil)
