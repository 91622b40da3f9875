package entities

import "time"

// TransactionLogEntry - учет отката для многошаговой операции.
// rollback_data пишется ДО мутации и достаточна для её ручного обращения.
type TransactionLogEntry struct {
	ID            int64                  `json:"id" db:"id"`
	TransactionID string                 `json:"transaction_id" db:"transaction_id"`
	OperationType string                 `json:"operation_type" db:"operation_type"`
	OperationData map[string]interface{} `json:"operation_data" db:"operation_data"`
	RollbackData  map[string]interface{} `json:"rollback_data" db:"rollback_data"`
	Status        string                 `json:"status" db:"status"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at" db:"updated_at"`
}
