package entities

import "time"

// StateTransition - неизменяемая запись одного перехода заявки.
// Только append: откат администратора добавляет компенсирующую запись,
// история никогда не правится.
type StateTransition struct {
	ID             int64                  `json:"id" db:"id"`
	RequestID      string                 `json:"request_id" db:"request_id"`
	FromRole       *string                `json:"from_role" db:"from_role"`
	ToRole         *string                `json:"to_role" db:"to_role"`
	Action         string                 `json:"action" db:"action"`
	ActorID        uint64                 `json:"actor_id" db:"actor_id"`
	TransitionData map[string]interface{} `json:"transition_data" db:"transition_data"`

	// Комментарий хранится как ключ формата + параметры: текст собирает
	// внешний слой локализации под язык участников.
	CommentKey    string                 `json:"comment_key" db:"comment_key"`
	CommentParams map[string]interface{} `json:"comment_params" db:"comment_params"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
