package entities

import "time"

// InventoryTransaction - движение материала по складу. Отрицательное
// количество означает расход (выдача техником), положительное - приход
// или корректировку сверки.
type InventoryTransaction struct {
	ID          int64     `json:"id" db:"id"`
	RequestID   *string   `json:"request_id" db:"request_id"`
	Material    string    `json:"material" db:"material"`
	Quantity    int64     `json:"quantity" db:"quantity"`
	PerformedBy uint64    `json:"performed_by" db:"performed_by"`
	Note        string    `json:"note" db:"note"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// InventoryDiscrepancy - найденное сверкой расхождение.
type InventoryDiscrepancy struct {
	Material string `json:"material"`
	Balance  int64  `json:"balance"`
}
