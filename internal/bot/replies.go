package bot

// Canned replies. Keys are Bot API content types or callback data values.

const (
	replyStart          = "Привет! Я бот, который помогает с торговыми сигналами."
	replyHelp           = "Список доступных команд:\n/start - Начать работу\n/help - Помощь"
	replyUnknownCommand = "Команда не распознана. Введите /help для списка команд."

	replyUnknownMessage = "Неизвестный тип сообщения."
	replyUnknownEdit    = "Вы отредактировали сообщение неизвестного типа."
	replyUnknownAction  = "Неизвестное действие."

	// Formats for the text content type, filled with the message text.
	replyTextFormat       = "Вы отправили текстовое сообщение: %s"
	replyEditedTextFormat = "Вы отредактировали текстовое сообщение: %s"

	// Formats for membership service messages, filled with the first name.
	replyGreetFormat    = "Привет, %s!"
	replyFarewellFormat = "%s покинул нас."
)

// mediaReplies answers a new message by content type.
var mediaReplies = map[string]string{
	"photo":      "Вы отправили фото!",
	"audio":      "Вы отправили аудио!",
	"document":   "Вы отправили документ!",
	"video":      "Вы отправили видео!",
	"video_note": "Вы отправили видеосообщение!",
	"voice":      "Вы отправили голосовое сообщение!",
	"sticker":    "Вы отправили стикер!",
	"animation":  "Вы отправили анимацию!",
}

// editedReplies answers an edited message by content type.
var editedReplies = map[string]string{
	"photo":      "Вы отредактировали фото!",
	"audio":      "Вы отредактировали аудио!",
	"document":   "Вы отредактировали документ!",
	"video":      "Вы отредактировали видео!",
	"video_note": "Вы отредактировали видеосообщение!",
	"voice":      "Вы отредактировали голосовое сообщение!",
	"sticker":    "Вы отредактировали стикер!",
	"animation":  "Вы отредактировали анимацию!",
}

// callbackReplies answers an inline button press by its callback data.
var callbackReplies = map[string]string{
	"some_action":    "Вы выбрали действие!",
	"another_action": "Другое действие выполнено!",
}

// serviceKinds are the chat service messages the bot reacts to or logs.
var serviceKinds = map[string]bool{
	"new_chat_members":        true,
	"left_chat_member":        true,
	"new_chat_photo":          true,
	"delete_chat_photo":       true,
	"group_chat_created":      true,
	"supergroup_chat_created": true,
	"channel_chat_created":    true,
	"migrate_to_chat_id":      true,
	"migrate_from_chat_id":    true,
	"pinned_message":          true,
}
