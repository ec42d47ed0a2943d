package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"itamchat/internal/app/db"
	"itamchat/internal/app/user"
	"itamchat/internal/pkg/randx"
)

const pgUserColumns = `u.id, u.email, u.username, u.password_hash, u.first_name, u.last_name, u.avatar, u.last_seen, u.created_at, u.updated_at`

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already migrated pool (see db.NewPool).
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close closes the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func scanPgUser(row pgx.Row) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Avatar, &u.LastSeen, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func collectPgUsers(rows pgx.Rows) ([]user.User, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (user.User, error) {
		return scanPgUser(row)
	})
}

func uuidStrings(ids []uuid.UUID) []string {
	return lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() })
}

func (s *Postgres) CreateUser(ctx context.Context, params NewUser) (*user.User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, username, password_hash, first_name, last_name, avatar, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING `+strings.ReplaceAll(pgUserColumns, "u.", ""),
		randx.ID(), params.Email, params.Username, params.PasswordHash, params.FirstName, params.LastName, params.Avatar)

	u, err := scanPgUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func (s *Postgres) GetUser(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u, err := scanPgUser(s.pool.QueryRow(ctx, `SELECT `+pgUserColumns+` FROM users u WHERE u.id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *Postgres) GetUserByLogin(ctx context.Context, login string) (*user.User, error) {
	u, err := scanPgUser(s.pool.QueryRow(ctx, `
		SELECT `+pgUserColumns+` FROM users u
		WHERE lower(u.email) = lower($1) OR lower(u.username) = lower($1)
		LIMIT 1`, login))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by login: %w", err)
	}
	return &u, nil
}

func (s *Postgres) SearchUsers(ctx context.Context, callerID uuid.UUID, query string, limit, offset int) ([]user.User, int, error) {
	query = strings.TrimSpace(query)
	pattern := searchPattern(query)
	where := `u.id <> $1 AND (lower(u.username) LIKE $2 ESCAPE '\' OR lower(u.first_name) LIKE $2 ESCAPE '\' OR lower(u.last_name) LIKE $2 ESCAPE '\')`

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users u WHERE `+where, callerID, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+pgUserColumns+` FROM users u
		WHERE `+where+`
		ORDER BY
			CASE WHEN lower(u.username) = $3 THEN 0 ELSE 1 END,
			CASE WHEN lower(u.username) LIKE $2 ESCAPE '\' THEN 0 ELSE 1 END,
			lower(u.username) COLLATE "C", lower(u.first_name) COLLATE "C", lower(u.last_name) COLLATE "C"
		LIMIT $4 OFFSET $5`,
		callerID, pattern, strings.ToLower(query), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search users: %w", err)
	}

	users, err := collectPgUsers(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("search users: %w", err)
	}
	return users, total, nil
}

func (s *Postgres) TouchLastSeen(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_seen = now(), updated_at = now() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("touch last_seen: %w", err)
	}
	return nil
}

func (s *Postgres) CreateChat(ctx context.Context, params CreateChatParams) (*Chat, error) {
	members := lo.Uniq(params.MemberIDs)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var existing int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM users WHERE id = ANY($1::uuid[])`, uuidStrings(members)).Scan(&existing); err != nil {
		return nil, fmt.Errorf("check members: %w", err)
	}
	if existing != len(members) {
		return nil, ErrNotFound
	}

	chat := Chat{ID: randx.ID(), IsGroup: params.IsGroup, Name: params.Name, Avatar: params.Avatar}
	err = tx.QueryRow(ctx, `
		INSERT INTO chats (id, is_group, name, avatar) VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		chat.ID, chat.IsGroup, chat.Name, chat.Avatar).Scan(&chat.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_members (chat_id, user_id)
		SELECT $1::uuid, unnest($2::uuid[])`, chat.ID, uuidStrings(members))
	if err != nil {
		return nil, fmt.Errorf("insert members: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &chat, nil
}

func (s *Postgres) FindDirectChat(ctx context.Context, a, b uuid.UUID) (*Chat, error) {
	var chat Chat
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.is_group, c.name, c.avatar, c.created_at
		FROM chats c
		JOIN chat_members m1 ON m1.chat_id = c.id AND m1.user_id = $1
		JOIN chat_members m2 ON m2.chat_id = c.id AND m2.user_id = $2
		WHERE NOT c.is_group
		ORDER BY c.created_at
		LIMIT 1`, a, b).Scan(&chat.ID, &chat.IsGroup, &chat.Name, &chat.Avatar, &chat.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find direct chat: %w", err)
	}
	return &chat, nil
}

func (s *Postgres) GetChat(ctx context.Context, chatID uuid.UUID) (*Chat, error) {
	var chat Chat
	err := s.pool.QueryRow(ctx, `SELECT id, is_group, name, avatar, created_at FROM chats WHERE id = $1`, chatID).
		Scan(&chat.ID, &chat.IsGroup, &chat.Name, &chat.Avatar, &chat.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &chat, nil
}

func (s *Postgres) ListChats(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ChatSummary, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chat_members WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count chats: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.is_group, c.name, c.avatar, c.created_at,
		       lm.id, lm.from_user_id, lm.text_content, lm.image_content, lm.created_at
		FROM chat_members cm
		JOIN chats c ON c.id = cm.chat_id
		LEFT JOIN LATERAL (
			SELECT m.id, m.from_user_id, m.text_content, m.image_content, m.created_at
			FROM messages m
			WHERE m.chat_id = c.id
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT 1
		) lm ON TRUE
		WHERE cm.user_id = $1
		ORDER BY lm.created_at DESC NULLS LAST, c.created_at DESC, c.id
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list chats: %w", err)
	}

	summaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ChatSummary, error) {
		var (
			sum       ChatSummary
			lmID      pgtype.UUID
			lmFrom    pgtype.UUID
			lmText    *string
			lmImage   *string
			lmCreated *time.Time
		)
		err := row.Scan(&sum.Chat.ID, &sum.Chat.IsGroup, &sum.Chat.Name, &sum.Chat.Avatar, &sum.Chat.CreatedAt,
			&lmID, &lmFrom, &lmText, &lmImage, &lmCreated)
		if err != nil {
			return sum, err
		}
		if lmID.Valid && lmCreated != nil {
			sum.LastMessage = &Message{
				ID:           uuid.UUID(lmID.Bytes),
				ChatID:       sum.Chat.ID,
				FromUserID:   uuid.UUID(lmFrom.Bytes),
				TextContent:  lmText,
				ImageContent: lmImage,
				CreatedAt:    *lmCreated,
				SeenBy:       []SeenReceipt{},
			}
		}
		return sum, nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list chats: %w", err)
	}

	if len(summaries) == 0 {
		return summaries, total, nil
	}

	chatIDs := lo.Map(summaries, func(sum ChatSummary, _ int) uuid.UUID { return sum.Chat.ID })
	memberRows, err := s.pool.Query(ctx, `
		SELECT cm.chat_id, `+pgUserColumns+`
		FROM chat_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.chat_id = ANY($1::uuid[])
		ORDER BY cm.joined_at, u.id`, uuidStrings(chatIDs))
	if err != nil {
		return nil, 0, fmt.Errorf("list chat members: %w", err)
	}
	defer memberRows.Close()

	byChat := make(map[uuid.UUID][]user.User, len(summaries))
	for memberRows.Next() {
		var (
			chatID uuid.UUID
			u      user.User
		)
		if err := memberRows.Scan(&chatID, &u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName,
			&u.LastName, &u.Avatar, &u.LastSeen, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan chat member: %w", err)
		}
		byChat[chatID] = append(byChat[chatID], u)
	}
	if err := memberRows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list chat members: %w", err)
	}

	for i := range summaries {
		summaries[i].Members = byChat[summaries[i].Chat.ID]
	}
	return summaries, total, nil
}

func (s *Postgres) ListMembers(ctx context.Context, chatID uuid.UUID) ([]user.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgUserColumns+`
		FROM chat_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.chat_id = $1
		ORDER BY cm.joined_at, u.id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	users, err := collectPgUsers(rows)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return users, nil
}

func (s *Postgres) IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2)`, chatID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}

func (s *Postgres) CreateMessage(ctx context.Context, params NewMessage) (*Message, error) {
	msg := Message{
		ID:           randx.ID(),
		ChatID:       params.ChatID,
		FromUserID:   params.FromUserID,
		TextContent:  params.TextContent,
		ImageContent: params.ImageContent,
		SeenBy:       []SeenReceipt{},
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, chat_id, from_user_id, text_content, image_content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		msg.ID, msg.ChatID, msg.FromUserID, msg.TextContent, msg.ImageContent).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (s *Postgres) ListMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]Message, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM messages WHERE chat_id = $1`, chatID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, from_user_id, text_content, image_content, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, chatID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		m := Message{SeenBy: []SeenReceipt{}}
		err := row.Scan(&m.ID, &m.ChatID, &m.FromUserID, &m.TextContent, &m.ImageContent, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}

	if len(messages) == 0 {
		return messages, total, nil
	}

	ids := lo.Map(messages, func(m Message, _ int) uuid.UUID { return m.ID })
	seenRows, err := s.pool.Query(ctx, `
		SELECT message_id, user_id, seen_at
		FROM message_seen
		WHERE message_id = ANY($1::uuid[])
		ORDER BY seen_at, user_id`, uuidStrings(ids))
	if err != nil {
		return nil, 0, fmt.Errorf("list receipts: %w", err)
	}
	defer seenRows.Close()

	index := make(map[uuid.UUID]int, len(messages))
	for i, m := range messages {
		index[m.ID] = i
	}
	for seenRows.Next() {
		var (
			messageID uuid.UUID
			receipt   SeenReceipt
		)
		if err := seenRows.Scan(&messageID, &receipt.UserID, &receipt.SeenAt); err != nil {
			return nil, 0, fmt.Errorf("scan receipt: %w", err)
		}
		if i, ok := index[messageID]; ok {
			messages[i].SeenBy = append(messages[i].SeenBy, receipt)
		}
	}
	if err := seenRows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list receipts: %w", err)
	}

	return messages, total, nil
}

func (s *Postgres) RecordSeen(ctx context.Context, chatID, messageID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO message_seen (message_id, user_id)
		SELECT id, $3::uuid FROM messages WHERE id = $1 AND chat_id = $2`, messageID, chatID, userID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrAlreadySeen
		}
		return fmt.Errorf("insert receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*Postgres)(nil)
