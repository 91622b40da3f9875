package entities

import "time"

// AccessControlLog - аудит каждого решения контроля доступа,
// и разрешений, и отказов.
type AccessControlLog struct {
	ID        int64     `json:"id" db:"id"`
	UserID    uint64    `json:"user_id" db:"user_id"`
	Action    string    `json:"action" db:"action"`
	Resource  string    `json:"resource" db:"resource"`
	Granted   bool      `json:"granted" db:"granted"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
