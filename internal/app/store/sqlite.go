package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"itamchat/internal/app/db"
	"itamchat/internal/app/user"
	"itamchat/internal/pkg/randx"
)

const sqliteUserColumns = `u.id, u.email, u.username, u.password_hash, u.first_name, u.last_name, u.avatar, u.last_seen, u.created_at, u.updated_at`

// SQLite implements Store on an embedded SQLite database.
// Identifiers are stored as text, timestamps as unix milliseconds.
type SQLite struct {
	sqlDB *sql.DB
}

// NewSQLite wraps an already migrated handle (see db.OpenSQLite).
func NewSQLite(sqlDB *sql.DB) *SQLite {
	return &SQLite{sqlDB: sqlDB}
}

// OpenSQLite opens and migrates the database file at path.
func OpenSQLite(path string) (*SQLite, error) {
	sqlDB, err := db.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return NewSQLite(sqlDB), nil
}

// Close closes the SQLite handle.
func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nowMillis() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []uuid.UUID) []any {
	return lo.Map(ids, func(id uuid.UUID, _ int) any { return id.String() })
}

func parseUUID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt id %q: %w", raw, err)
	}
	return id, nil
}

func scanSQLiteUser(row rowScanner, prefix ...any) (user.User, error) {
	var (
		u                    user.User
		id                   string
		lastSeen             sql.NullInt64
		createdAt, updatedAt int64
	)
	dest := append(prefix, &id, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Avatar, &lastSeen, &createdAt, &updatedAt)
	if err := row.Scan(dest...); err != nil {
		return u, err
	}

	parsed, err := parseUUID(id)
	if err != nil {
		return u, err
	}
	u.ID = parsed
	if lastSeen.Valid {
		t := fromMillis(lastSeen.Int64)
		u.LastSeen = &t
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func collectSQLiteUsers(rows *sql.Rows) ([]user.User, error) {
	defer rows.Close()

	users := []user.User{}
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanSQLiteChat(row rowScanner) (Chat, error) {
	var (
		chat      Chat
		id        string
		createdAt int64
	)
	if err := row.Scan(&id, &chat.IsGroup, &chat.Name, &chat.Avatar, &createdAt); err != nil {
		return chat, err
	}
	parsed, err := parseUUID(id)
	if err != nil {
		return chat, err
	}
	chat.ID = parsed
	chat.CreatedAt = fromMillis(createdAt)
	return chat, nil
}

func scanSQLiteMessage(row rowScanner) (Message, error) {
	var (
		m                      Message
		id, chatID, fromUserID string
		createdAt              int64
	)
	if err := row.Scan(&id, &chatID, &fromUserID, &m.TextContent, &m.ImageContent, &createdAt); err != nil {
		return m, err
	}

	var err error
	if m.ID, err = parseUUID(id); err != nil {
		return m, err
	}
	if m.ChatID, err = parseUUID(chatID); err != nil {
		return m, err
	}
	if m.FromUserID, err = parseUUID(fromUserID); err != nil {
		return m, err
	}
	m.CreatedAt = fromMillis(createdAt)
	m.SeenBy = []SeenReceipt{}
	return m, nil
}

func (s *SQLite) CreateUser(ctx context.Context, params NewUser) (*user.User, error) {
	now := nowMillis()
	u := user.User{
		ID:           randx.ID(),
		Email:        params.Email,
		Username:     params.Username,
		PasswordHash: params.PasswordHash,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Avatar:       params.Avatar,
		LastSeen:     &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO users (id, email, username, username_lower, password_hash, first_name, last_name, avatar, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.Email, u.Username, strings.ToLower(u.Username), u.PasswordHash,
		u.FirstName, u.LastName, u.Avatar, toMillis(now), toMillis(now), toMillis(now))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func (s *SQLite) GetUser(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u, err := scanSQLiteUser(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+sqliteUserColumns+` FROM users u WHERE u.id = ?`, userID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *SQLite) GetUserByLogin(ctx context.Context, login string) (*user.User, error) {
	u, err := scanSQLiteUser(s.sqlDB.QueryRowContext(ctx, `
		SELECT `+sqliteUserColumns+` FROM users u
		WHERE lower(u.email) = lower(?1) OR u.username_lower = lower(?1)
		LIMIT 1`, login))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by login: %w", err)
	}
	return &u, nil
}

func (s *SQLite) SearchUsers(ctx context.Context, callerID uuid.UUID, query string, limit, offset int) ([]user.User, int, error) {
	query = strings.TrimSpace(query)
	pattern := searchPattern(query)
	where := `u.id <> ?1 AND (u.username_lower LIKE ?2 ESCAPE '\' OR lower(u.first_name) LIKE ?2 ESCAPE '\' OR lower(u.last_name) LIKE ?2 ESCAPE '\')`

	var total int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT count(*) FROM users u WHERE `+where, callerID.String(), pattern).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT `+sqliteUserColumns+` FROM users u
		WHERE `+where+`
		ORDER BY
			CASE WHEN u.username_lower = ?3 THEN 0 ELSE 1 END,
			CASE WHEN u.username_lower LIKE ?2 ESCAPE '\' THEN 0 ELSE 1 END,
			u.username_lower, lower(u.first_name), lower(u.last_name)
		LIMIT ?4 OFFSET ?5`,
		callerID.String(), pattern, strings.ToLower(query), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search users: %w", err)
	}

	users, err := collectSQLiteUsers(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("search users: %w", err)
	}
	return users, total, nil
}

func (s *SQLite) TouchLastSeen(ctx context.Context, userID uuid.UUID) error {
	now := toMillis(nowMillis())
	_, err := s.sqlDB.ExecContext(ctx, `UPDATE users SET last_seen = ?, updated_at = ? WHERE id = ?`, now, now, userID.String())
	if err != nil {
		return fmt.Errorf("touch last_seen: %w", err)
	}
	return nil
}

func (s *SQLite) CreateChat(ctx context.Context, params CreateChatParams) (*Chat, error) {
	members := lo.Uniq(params.MemberIDs)
	if len(members) == 0 {
		return nil, ErrNotFound
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	err = tx.QueryRowContext(ctx,
		`SELECT count(*) FROM users WHERE id IN (`+placeholders(len(members))+`)`, idArgs(members)...).Scan(&existing)
	if err != nil {
		return nil, fmt.Errorf("check members: %w", err)
	}
	if existing != len(members) {
		return nil, ErrNotFound
	}

	chat := Chat{ID: randx.ID(), IsGroup: params.IsGroup, Name: params.Name, Avatar: params.Avatar, CreatedAt: nowMillis()}
	_, err = tx.ExecContext(ctx, `INSERT INTO chats (id, is_group, name, avatar, created_at) VALUES (?, ?, ?, ?, ?)`,
		chat.ID.String(), chat.IsGroup, chat.Name, chat.Avatar, toMillis(chat.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	for _, memberID := range members {
		_, err = tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id, joined_at) VALUES (?, ?, ?)`,
			chat.ID.String(), memberID.String(), toMillis(chat.CreatedAt))
		if err != nil {
			return nil, fmt.Errorf("insert member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &chat, nil
}

func (s *SQLite) FindDirectChat(ctx context.Context, a, b uuid.UUID) (*Chat, error) {
	chat, err := scanSQLiteChat(s.sqlDB.QueryRowContext(ctx, `
		SELECT c.id, c.is_group, c.name, c.avatar, c.created_at
		FROM chats c
		JOIN chat_members m1 ON m1.chat_id = c.id AND m1.user_id = ?
		JOIN chat_members m2 ON m2.chat_id = c.id AND m2.user_id = ?
		WHERE c.is_group = 0
		ORDER BY c.created_at
		LIMIT 1`, a.String(), b.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find direct chat: %w", err)
	}
	return &chat, nil
}

func (s *SQLite) GetChat(ctx context.Context, chatID uuid.UUID) (*Chat, error) {
	chat, err := scanSQLiteChat(s.sqlDB.QueryRowContext(ctx,
		`SELECT id, is_group, name, avatar, created_at FROM chats WHERE id = ?`, chatID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &chat, nil
}

func (s *SQLite) ListChats(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ChatSummary, int, error) {
	var total int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT count(*) FROM chat_members WHERE user_id = ?`, userID.String()).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count chats: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT c.id, c.is_group, c.name, c.avatar, c.created_at,
		       m.id, m.from_user_id, m.text_content, m.image_content, m.created_at
		FROM chat_members cm
		JOIN chats c ON c.id = cm.chat_id
		LEFT JOIN messages m ON m.rowid = (
			SELECT m2.rowid FROM messages m2
			WHERE m2.chat_id = c.id
			ORDER BY m2.created_at DESC, m2.rowid DESC
			LIMIT 1
		)
		WHERE cm.user_id = ?
		ORDER BY m.created_at IS NULL, m.created_at DESC, c.created_at DESC, c.id
		LIMIT ? OFFSET ?`, userID.String(), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list chats: %w", err)
	}

	summaries, err := func() ([]ChatSummary, error) {
		defer rows.Close()

		out := []ChatSummary{}
		for rows.Next() {
			var (
				sum             ChatSummary
				chatID          string
				chatCreated     int64
				lmID, lmFrom    sql.NullString
				lmCreated       sql.NullInt64
				lmText, lmImage *string
			)
			if err := rows.Scan(&chatID, &sum.Chat.IsGroup, &sum.Chat.Name, &sum.Chat.Avatar, &chatCreated,
				&lmID, &lmFrom, &lmText, &lmImage, &lmCreated); err != nil {
				return nil, err
			}

			var err error
			if sum.Chat.ID, err = parseUUID(chatID); err != nil {
				return nil, err
			}
			sum.Chat.CreatedAt = fromMillis(chatCreated)

			if lmID.Valid {
				last := &Message{ChatID: sum.Chat.ID, TextContent: lmText, ImageContent: lmImage,
					CreatedAt: fromMillis(lmCreated.Int64), SeenBy: []SeenReceipt{}}
				if last.ID, err = parseUUID(lmID.String); err != nil {
					return nil, err
				}
				if last.FromUserID, err = parseUUID(lmFrom.String); err != nil {
					return nil, err
				}
				sum.LastMessage = last
			}
			out = append(out, sum)
		}
		return out, rows.Err()
	}()
	if err != nil {
		return nil, 0, fmt.Errorf("list chats: %w", err)
	}

	if len(summaries) == 0 {
		return summaries, total, nil
	}

	chatIDs := lo.Map(summaries, func(sum ChatSummary, _ int) uuid.UUID { return sum.Chat.ID })
	memberRows, err := s.sqlDB.QueryContext(ctx, `
		SELECT cm.chat_id, `+sqliteUserColumns+`
		FROM chat_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.chat_id IN (`+placeholders(len(chatIDs))+`)
		ORDER BY cm.joined_at, u.id`, idArgs(chatIDs)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list chat members: %w", err)
	}
	defer memberRows.Close()

	byChat := make(map[string][]user.User, len(summaries))
	for memberRows.Next() {
		var chatID string
		u, err := scanSQLiteUser(memberRows, &chatID)
		if err != nil {
			return nil, 0, fmt.Errorf("scan chat member: %w", err)
		}
		byChat[chatID] = append(byChat[chatID], u)
	}
	if err := memberRows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list chat members: %w", err)
	}

	for i := range summaries {
		summaries[i].Members = byChat[summaries[i].Chat.ID.String()]
	}
	return summaries, total, nil
}

func (s *SQLite) ListMembers(ctx context.Context, chatID uuid.UUID) ([]user.User, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT `+sqliteUserColumns+`
		FROM chat_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.chat_id = ?
		ORDER BY cm.joined_at, u.id`, chatID.String())
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	users, err := collectSQLiteUsers(rows)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return users, nil
}

func (s *SQLite) IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_members WHERE chat_id = ? AND user_id = ?)`,
		chatID.String(), userID.String()).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}

func (s *SQLite) CreateMessage(ctx context.Context, params NewMessage) (*Message, error) {
	msg := Message{
		ID:           randx.ID(),
		ChatID:       params.ChatID,
		FromUserID:   params.FromUserID,
		TextContent:  params.TextContent,
		ImageContent: params.ImageContent,
		CreatedAt:    nowMillis(),
		SeenBy:       []SeenReceipt{},
	}

	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, from_user_id, text_content, image_content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID.String(), msg.ChatID.String(), msg.FromUserID.String(), msg.TextContent, msg.ImageContent, toMillis(msg.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (s *SQLite) ListMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]Message, int, error) {
	var total int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT count(*) FROM messages WHERE chat_id = ?`, chatID.String()).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, chat_id, from_user_id, text_content, image_content, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, chatID.String(), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}

	messages, err := func() ([]Message, error) {
		defer rows.Close()

		out := []Message{}
		for rows.Next() {
			m, err := scanSQLiteMessage(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		return out, rows.Err()
	}()
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}

	if len(messages) == 0 {
		return messages, total, nil
	}

	ids := lo.Map(messages, func(m Message, _ int) uuid.UUID { return m.ID })
	seenRows, err := s.sqlDB.QueryContext(ctx, `
		SELECT message_id, user_id, seen_at
		FROM message_seen
		WHERE message_id IN (`+placeholders(len(ids))+`)
		ORDER BY seen_at, user_id`, idArgs(ids)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list receipts: %w", err)
	}
	defer seenRows.Close()

	index := make(map[string]int, len(messages))
	for i, m := range messages {
		index[m.ID.String()] = i
	}
	for seenRows.Next() {
		var (
			messageID, userID string
			seenAt            int64
		)
		if err := seenRows.Scan(&messageID, &userID, &seenAt); err != nil {
			return nil, 0, fmt.Errorf("scan receipt: %w", err)
		}
		i, ok := index[messageID]
		if !ok {
			continue
		}
		parsed, err := parseUUID(userID)
		if err != nil {
			return nil, 0, fmt.Errorf("scan receipt: %w", err)
		}
		messages[i].SeenBy = append(messages[i].SeenBy, SeenReceipt{UserID: parsed, SeenAt: fromMillis(seenAt)})
	}
	if err := seenRows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list receipts: %w", err)
	}

	return messages, total, nil
}

func (s *SQLite) RecordSeen(ctx context.Context, chatID, messageID, userID uuid.UUID) error {
	res, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO message_seen (message_id, user_id, seen_at)
		SELECT id, ?, ? FROM messages WHERE id = ? AND chat_id = ?`,
		userID.String(), toMillis(nowMillis()), messageID.String(), chatID.String())
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrAlreadySeen
		}
		return fmt.Errorf("insert receipt: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*SQLite)(nil)
