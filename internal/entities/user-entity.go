package entities

// User - чтение внешней таблицы users. Управление пользователями
// (регистрация, пароли) живет вне этого сервиса.
type User struct {
	ID             uint64  `json:"id" db:"id"`
	Fio            string  `json:"fio" db:"fio"`
	Role           string  `json:"role" db:"role"`
	TelegramChatID *int64  `json:"telegram_chat_id" db:"telegram_chat_id"`
	Locale         string  `json:"locale" db:"locale"`
	Email          *string `json:"email" db:"email"`
}
