package queue

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookQueueItem is a unit of deferred webhook work. Rows are owned
// exclusively by this package; everything else goes through the repository.
type WebhookQueueItem struct {
	ID          uint           `gorm:"column:id;primaryKey;autoIncrement"`
	EventType   string         `gorm:"column:event_type;type:varchar(64);not null"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb;not null"`
	Status      string         `gorm:"column:status;type:varchar(20);default:'pending';not null;index"`
	Attempts    int            `gorm:"column:attempts;type:int;default:1;not null"`
	MaxAttempts int            `gorm:"column:max_attempts;type:int;default:5;not null"`
	NextRetryAt time.Time      `gorm:"column:next_retry_at;not null;index"`
	LastError   string         `gorm:"column:last_error;type:text"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
	StatusCompleted  = "completed"
	StatusDead       = "dead"
)

func (WebhookQueueItem) TableName() string {
	return "webhook_queue"
}

// Stats is a per-status count snapshot for monitoring.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Failed     int64 `json:"failed"`
	Completed  int64 `json:"completed"`
	Dead       int64 `json:"dead"`
}
