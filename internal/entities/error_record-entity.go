package entities

import "time"

// ErrorRecord - категоризированная запись сбоя. Для transient-ошибок
// retry_count/max_retries управляют автоматическим повтором.
type ErrorRecord struct {
	ID         int64                  `json:"id" db:"id"`
	Category   string                 `json:"category" db:"category"`
	Severity   string                 `json:"severity" db:"severity"`
	Message    string                 `json:"message" db:"message"`
	Context    map[string]interface{} `json:"context" db:"context"`
	RetryCount int                    `json:"retry_count" db:"retry_count"`
	MaxRetries int                    `json:"max_retries" db:"max_retries"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
}
