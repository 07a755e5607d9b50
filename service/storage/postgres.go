package storage

import (
	"context"

	"ChatHub/logger"
	"ChatHub/module/chat/model"
	"ChatHub/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	insertMessageSQL = `INSERT INTO ` + model.MessageTable + ` (
	id, msg_id, from_user, to_user, content, message_type, is_group, is_read, is_last,
	chat_identify, file_id, extends, at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	// 同一会话只保留一条 is_last
	clearLastSQL = `UPDATE ` + model.MessageTable + ` SET is_last = false
WHERE chat_identify = $1 AND is_last AND id <> $2`

	stampUserSQL = `UPDATE users SET last_active_time = to_timestamp($2) WHERE user_id = $1`

	groupMembersSQL = `SELECT user_id FROM ` + model.GroupUserTable + ` WHERE group_id = $1`
)

// SchemaSQL 建表语句，启动时可选执行
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS ` + model.MessageTable + ` (
	id            TEXT PRIMARY KEY,
	msg_id        TEXT NOT NULL UNIQUE,
	from_user     TEXT NOT NULL,
	to_user       TEXT NOT NULL,
	content       TEXT NOT NULL,
	message_type  TEXT NOT NULL DEFAULT 'text',
	is_group      BOOLEAN NOT NULL DEFAULT false,
	is_read       BOOLEAN NOT NULL DEFAULT false,
	is_last       BOOLEAN NOT NULL DEFAULT true,
	chat_identify TEXT NOT NULL,
	file_id       TEXT,
	extends       TEXT,
	at            TEXT,
	created_at    BIGINT NOT NULL,
	updated_at    BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_chat_idx ON ` + model.MessageTable + ` (chat_identify, created_at);
CREATE TABLE IF NOT EXISTS ` + model.GroupUserTable + ` (
	id         TEXT PRIMARY KEY,
	group_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	role       INT  NOT NULL DEFAULT 3,
	invite_id  TEXT,
	created_at BIGINT NOT NULL,
	UNIQUE (group_id, user_id)
);
CREATE TABLE IF NOT EXISTS users (
	user_id          TEXT PRIMARY KEY,
	last_active_time TIMESTAMPTZ
);`

// Postgres 基于 pgxpool 的网关
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres 建连池并 ping
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.WrapMsg(err, "pgxpool new")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.WrapMsg(err, "pg ping")
	}
	return &Postgres{pool: pool}, nil
}

func (g *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := g.pool.Exec(ctx, SchemaSQL)
	return errs.WrapMsg(err, "ensure schema")
}

func (g *Postgres) Close() { g.pool.Close() }

// SaveMessage 同一事务内写消息并维护 is_last
func (g *Postgres) SaveMessage(ctx context.Context, m *model.ChatMessage) error {
	err := pgx.BeginFunc(ctx, g.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertMessageSQL, messageArgs(m)...); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, clearLastSQL, m.ChatIdentify, m.ID)
		return err
	})
	if err != nil {
		return errs.WrapMsg(err, "insert message", "msg_id", m.MsgID)
	}
	if _, err := g.pool.Exec(ctx, stampUserSQL, m.FromUser, m.CreatedAt); err != nil {
		logger.Warn("[pg] stamp last_active_time", zap.String("user_id", m.FromUser), zap.Error(err))
	}
	return nil
}

func (g *Postgres) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	rows, err := g.pool.Query(ctx, groupMembersSQL, groupID)
	if err != nil {
		return nil, errs.WrapMsg(err, "query group members", "group_id", groupID)
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errs.WrapMsg(err, "scan group members", "group_id", groupID)
	}
	return members, nil
}

func messageArgs(m *model.ChatMessage) []any {
	return []any{
		m.ID, m.MsgID, m.FromUser, m.ToUser, m.Content, string(m.MessageType),
		m.IsGroup, m.IsRead, m.IsLast, m.ChatIdentify,
		m.FileID, m.Extends, m.At, m.CreatedAt, m.UpdatedAt,
	}
}
