/*
Package handler provides HTTP handler functions for listing, reading and creating chats
and for the REST fallback of message sending.
*/
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"itamchat/internal/app/chat"
	"itamchat/internal/app/store"
	"itamchat/internal/app/user"
	"itamchat/internal/pkg/errs"
	"itamchat/internal/pkg/logx"
	"itamchat/internal/pkg/req"
	"itamchat/internal/pkg/resp"
)

// unknownPeerName names a direct chat whose other member is gone.
const unknownPeerName = "Unknown"

// LastMessagePreview is the latest message shown in the chat list.
type LastMessagePreview struct {
	ID           uuid.UUID `json:"id"`
	FromUserID   uuid.UUID `json:"from_user_id"`
	TextContent  *string   `json:"text_content"`
	ImageContent *string   `json:"image_content"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChatPreview is one entry of the chat list.
type ChatPreview struct {
	ID          uuid.UUID           `json:"id"`
	IsGroup     bool                `json:"is_group"`
	Name        string              `json:"name"`
	Avatar      *string             `json:"avatar"`
	LastMessage *LastMessagePreview `json:"last_message"`
}

// ChatDetail is a chat with its members.
type ChatDetail struct {
	ID      uuid.UUID     `json:"id"`
	IsGroup bool          `json:"is_group"`
	Name    *string       `json:"name"`
	Avatar  *string       `json:"avatar"`
	Users   []user.Public `json:"users"`
}

// ChatWithMessages is a chat with one page of its history, newest first.
type ChatWithMessages struct {
	Chat     ChatDetail      `json:"chat"`
	Messages []store.Message `json:"messages"`
	Total    int             `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

// displayFor returns the name and avatar callerID sees for a chat: the chat's own
// for groups, the other member's for direct chats.
func displayFor(c *store.Chat, members []user.User, callerID uuid.UUID) (string, *string) {
	if c.IsGroup {
		return lo.FromPtr(c.Name), c.Avatar
	}

	other, ok := lo.Find(members, func(u user.User) bool { return u.ID != callerID })
	if !ok {
		return unknownPeerName, nil
	}
	return other.DisplayName(), other.Avatar
}

func buildChatDetail(c *store.Chat, members []user.User, callerID uuid.UUID) ChatDetail {
	name, avatar := displayFor(c, members, callerID)

	return ChatDetail{
		ID:      c.ID,
		IsGroup: c.IsGroup,
		Name:    &name,
		Avatar:  avatar,
		Users:   lo.Map(members, func(u user.User, _ int) user.Public { return u.Public() }),
	}
}

func (deps *AppDeps) loadChatDetail(ctx context.Context, c *store.Chat, callerID uuid.UUID) (ChatDetail, error) {
	members, err := deps.Store.ListMembers(ctx, c.ID)
	if err != nil {
		return ChatDetail{}, err
	}
	return buildChatDetail(c, members, callerID), nil
}

// HandleListChats lists the caller's chats, most recently active first.
func HandleListChats(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, customErr := currentUserID(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		limit, offset, customErr := req.Pagination(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		summaries, total, err := deps.Store.ListChats(r.Context(), callerID, limit, offset)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed, err))
			return
		}

		items := lo.Map(summaries, func(s store.ChatSummary, _ int) ChatPreview {
			name, avatar := displayFor(&s.Chat, s.Members, callerID)

			preview := ChatPreview{ID: s.Chat.ID, IsGroup: s.Chat.IsGroup, Name: name, Avatar: avatar}
			if m := s.LastMessage; m != nil {
				preview.LastMessage = &LastMessagePreview{
					ID:           m.ID,
					FromUserID:   m.FromUserID,
					TextContent:  m.TextContent,
					ImageContent: m.ImageContent,
					CreatedAt:    m.CreatedAt,
				}
			}
			return preview
		})

		resp.RespondSuccess(w, r, resp.NewPage(items, total, limit, offset))
	}
}

// HandleGetChat returns a chat the caller belongs to with one page of messages.
func HandleGetChat(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, customErr := currentUserID(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		chatID, customErr := chatIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		limit, offset, customErr := req.Pagination(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := deps.requireMember(r, chatID, callerID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		c, err := deps.Store.GetChat(r.Context(), chatID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrChatNotFound))
				return
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed, err))
			return
		}

		detail, err := deps.loadChatDetail(r.Context(), c, callerID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed, err))
			return
		}

		messages, total, err := deps.Store.ListMessages(r.Context(), chatID, limit, offset)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed, err))
			return
		}
		if messages == nil {
			messages = []store.Message{}
		}

		resp.RespondSuccess(w, r, ChatWithMessages{
			Chat:     detail,
			Messages: messages,
			Total:    total,
			Limit:    limit,
			Offset:   offset,
		})
	}
}

type CreateChatInput struct {
	// IsGroup selects a group chat; otherwise a direct chat with UserID is opened.
	IsGroup bool `json:"is_group"`

	// UserID is the other member of a direct chat.
	UserID *uuid.UUID `json:"user_id,omitempty"`

	// Name, Avatar and UserIDs describe a group chat. The creator is always a member.
	Name    *string     `json:"name,omitempty" validate:"omitempty,max=100"`
	Avatar  *string     `json:"avatar,omitempty" validate:"omitempty,max=2048"`
	UserIDs []uuid.UUID `json:"user_ids,omitempty" validate:"omitempty,max=100"`
}

// HandleCreateChat opens a direct chat (reusing an existing one for the same pair)
// or creates a group chat.
func HandleCreateChat(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, customErr := currentUserID(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input CreateChatInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		params := store.CreateChatParams{IsGroup: input.IsGroup}

		if input.IsGroup {
			name := strings.TrimSpace(lo.FromPtr(input.Name))
			if name == "" {
				resp.RespondError(w, r, errs.NewError(errs.ErrGroupNameRequired))
				return
			}

			members := lo.Uniq(append([]uuid.UUID{callerID}, input.UserIDs...))
			if len(members) < 2 || lo.Contains(members, uuid.Nil) {
				resp.RespondError(w, r, errs.NewError(errs.ErrChatMembersInvalid))
				return
			}

			params.Name = &name
			params.Avatar = input.Avatar
			params.MemberIDs = members
		} else {
			if input.UserID == nil || *input.UserID == uuid.Nil || *input.UserID == callerID {
				resp.RespondError(w, r, errs.NewError(errs.ErrChatMembersInvalid))
				return
			}

			existing, err := deps.Store.FindDirectChat(r.Context(), callerID, *input.UserID)
			switch {
			case err == nil:
				detail, err := deps.loadChatDetail(r.Context(), existing, callerID)
				if err != nil {
					resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed, err))
					return
				}
				resp.RespondSuccess(w, r, detail)
				return
			case !errors.Is(err, store.ErrNotFound):
				resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed, err))
				return
			}

			params.MemberIDs = []uuid.UUID{callerID, *input.UserID}
		}

		created, err := deps.Store.CreateChat(r.Context(), params)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed, err))
			return
		}

		detail, err := deps.loadChatDetail(r.Context(), created, callerID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed, err))
			return
		}

		logx.Info("Chat created", "chat_id", created.ID.String(), "is_group", created.IsGroup, "members", len(params.MemberIDs))
		resp.RespondCreated(w, r, detail)
	}
}

type SendMessageInput struct {
	TextContent  *string `json:"text_content,omitempty"`
	ImageContent *string `json:"image_content,omitempty"`
}

// HandleSendMessage persists a message sent over REST and broadcasts it to the
// chat's live connections.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, customErr := currentUserID(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		chatID, customErr := chatIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input SendMessageInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if lo.FromPtr(input.TextContent) == "" {
			input.TextContent = nil
		}
		if lo.FromPtr(input.ImageContent) == "" {
			input.ImageContent = nil
		}
		if input.TextContent == nil && input.ImageContent == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageContentRequired))
			return
		}
		if utf8.RuneCountInString(lo.FromPtr(input.TextContent)) > chat.MaxTextLength ||
			len(lo.FromPtr(input.ImageContent)) > chat.MaxImageURLLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageContentTooLong))
			return
		}

		if customErr := deps.requireMember(r, chatID, callerID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		msg, err := deps.Store.CreateMessage(r.Context(), store.NewMessage{
			ChatID:       chatID,
			FromUserID:   callerID,
			TextContent:  input.TextContent,
			ImageContent: input.ImageContent,
		})
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed, err))
			return
		}

		delivered := deps.Hub.Broadcast(chatID, chat.MessageCreated{Message: *msg})
		logx.Info("Message sent over REST", "chat_id", chatID.String(), "message_id", msg.ID.String(), "delivered", delivered)

		resp.RespondCreated(w, r, msg)
	}
}
