package models

import "time"

// Subscription чат telegram, подписанный на рассылку отчетов.
type Subscription struct {
	ID           uint      `gorm:"column:id;primaryKey" db:"id"`
	ChatID       int64     `gorm:"column:chat_id;uniqueIndex;not null" db:"chat_id"`
	Title        string    `gorm:"column:title;not null" db:"title"`
	SubscribedAt time.Time `gorm:"column:subscribed_at;autoCreateTime" db:"subscribed_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
