package telegram

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ///////////////////////////////////////////////
// Bot API objects
// ///////////////////////////////////////////////

// Update is one incoming update. Exactly one of the optional fields is set.
type Update struct {
	UpdateID          int64          `json:"update_id"`
	Message           *Message       `json:"message,omitempty"`
	EditedMessage     *Message       `json:"edited_message,omitempty"`
	ChannelPost       *Message       `json:"channel_post,omitempty"`
	EditedChannelPost *Message       `json:"edited_channel_post,omitempty"`
	CallbackQuery     *CallbackQuery `json:"callback_query,omitempty"`

	// Kinds the bot does not act on are kept raw so they can still be logged.
	InlineQuery        json.RawMessage `json:"inline_query,omitempty"`
	ChosenInlineResult json.RawMessage `json:"chosen_inline_result,omitempty"`
	ShippingQuery      json.RawMessage `json:"shipping_query,omitempty"`
	PreCheckoutQuery   json.RawMessage `json:"pre_checkout_query,omitempty"`
	Poll               json.RawMessage `json:"poll,omitempty"`
	PollAnswer         json.RawMessage `json:"poll_answer,omitempty"`
	MyChatMember       json.RawMessage `json:"my_chat_member,omitempty"`
	ChatMember         json.RawMessage `json:"chat_member,omitempty"`
	ChatJoinRequest    json.RawMessage `json:"chat_join_request,omitempty"`
}

// Kind returns the allowed_updates name of the populated field, or "unknown".
func (u Update) Kind() string {
	switch {
	case u.Message != nil:
		return "message"
	case u.EditedMessage != nil:
		return "edited_message"
	case u.ChannelPost != nil:
		return "channel_post"
	case u.EditedChannelPost != nil:
		return "edited_channel_post"
	case u.CallbackQuery != nil:
		return "callback_query"
	case len(u.InlineQuery) > 0:
		return "inline_query"
	case len(u.ChosenInlineResult) > 0:
		return "chosen_inline_result"
	case len(u.ShippingQuery) > 0:
		return "shipping_query"
	case len(u.PreCheckoutQuery) > 0:
		return "pre_checkout_query"
	case len(u.Poll) > 0:
		return "poll"
	case len(u.PollAnswer) > 0:
		return "poll_answer"
	case len(u.MyChatMember) > 0:
		return "my_chat_member"
	case len(u.ChatMember) > 0:
		return "chat_member"
	case len(u.ChatJoinRequest) > 0:
		return "chat_join_request"
	default:
		return "unknown"
	}
}

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName returns the first and last name joined by a space.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Chat is a private chat, group, supergroup or channel.
type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

// File identifies an uploaded file of any media kind.
type File struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// Sticker is a sticker attachment.
type Sticker struct {
	File
	Emoji string `json:"emoji,omitempty"`
}

// Message is a chat message, including service messages.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
	Caption   string `json:"caption,omitempty"`

	Photo     []File   `json:"photo,omitempty"`
	Audio     *File    `json:"audio,omitempty"`
	Document  *File    `json:"document,omitempty"`
	Video     *File    `json:"video,omitempty"`
	VideoNote *File    `json:"video_note,omitempty"`
	Voice     *File    `json:"voice,omitempty"`
	Sticker   *Sticker `json:"sticker,omitempty"`
	Animation *File    `json:"animation,omitempty"`

	NewChatMembers        []User   `json:"new_chat_members,omitempty"`
	LeftChatMember        *User    `json:"left_chat_member,omitempty"`
	PinnedMessage         *Message `json:"pinned_message,omitempty"`
	NewChatTitle          string   `json:"new_chat_title,omitempty"`
	NewChatPhoto          []File   `json:"new_chat_photo,omitempty"`
	DeleteChatPhoto       bool     `json:"delete_chat_photo,omitempty"`
	GroupChatCreated      bool     `json:"group_chat_created,omitempty"`
	SupergroupChatCreated bool     `json:"supergroup_chat_created,omitempty"`
	ChannelChatCreated    bool     `json:"channel_chat_created,omitempty"`
	MigrateToChatID       int64    `json:"migrate_to_chat_id,omitempty"`
	MigrateFromChatID     int64    `json:"migrate_from_chat_id,omitempty"`
}

// ContentType names the payload of m the way the Bot API documents it.
// Animations also carry a document, so animation is checked first.
func (m *Message) ContentType() string {
	switch {
	case m.Text != "":
		return "text"
	case m.Animation != nil:
		return "animation"
	case len(m.Photo) > 0:
		return "photo"
	case m.Audio != nil:
		return "audio"
	case m.Document != nil:
		return "document"
	case m.VideoNote != nil:
		return "video_note"
	case m.Video != nil:
		return "video"
	case m.Voice != nil:
		return "voice"
	case m.Sticker != nil:
		return "sticker"
	case len(m.NewChatMembers) > 0:
		return "new_chat_members"
	case m.LeftChatMember != nil:
		return "left_chat_member"
	case m.PinnedMessage != nil:
		return "pinned_message"
	case m.NewChatTitle != "":
		return "new_chat_title"
	case len(m.NewChatPhoto) > 0:
		return "new_chat_photo"
	case m.DeleteChatPhoto:
		return "delete_chat_photo"
	case m.GroupChatCreated:
		return "group_chat_created"
	case m.SupergroupChatCreated:
		return "supergroup_chat_created"
	case m.ChannelChatCreated:
		return "channel_chat_created"
	case m.MigrateToChatID != 0:
		return "migrate_to_chat_id"
	case m.MigrateFromChatID != 0:
		return "migrate_from_chat_id"
	default:
		return "unknown"
	}
}

// Command returns the bot command at the start of the text without the
// leading slash or an @botname suffix, and false when the text is not a command.
func (m *Message) Command() (string, bool) {
	if !strings.HasPrefix(m.Text, "/") {
		return "", false
	}
	cmd := strings.TrimPrefix(strings.Fields(m.Text)[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", false
	}
	return strings.ToLower(cmd), true
}

// CallbackQuery is a press of an inline keyboard button.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// ///////////////////////////////////////////////
// Envelope and errors
// ///////////////////////////////////////////////

// response is the envelope every Bot API method returns.
type response struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

type responseParameters struct {
	RetryAfter int `json:"retry_after,omitempty"`
}

// APIError is a request the Bot API answered with ok=false.
type APIError struct {
	// Method is the Bot API method called.
	Method string
	// Code is the error_code field, usually mirroring the HTTP status.
	Code int
	// Description is the server's explanation.
	Description string
	// RetryAfter is the flood-control wait in seconds, zero when absent.
	RetryAfter int
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s: %d %s (retry after %ds)", e.Method, e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}
