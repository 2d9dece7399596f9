package domain

import "context"

// EventPublisher 生命周期事件发布接口（outbox 实现）
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, event any) error
}
