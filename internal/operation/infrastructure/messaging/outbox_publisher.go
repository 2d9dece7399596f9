// Package messaging 实现基于 Outbox 模式的生命周期事件发布与 Kafka 转发。
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wyfcoding/pkg/contextx"
	"github.com/wyfcoding/pkg/idgen"
	"gorm.io/gorm"

	"github.com/wyfcoding/optionsledger/pkg/logger"
	"github.com/wyfcoding/optionsledger/pkg/mq"
)

// OutboxMessage 待转发的事件记录；与业务写入同一事务落库
type OutboxMessage struct {
	ID        uint      `gorm:"primaryKey"`
	EventID   string    `gorm:"column:event_id;type:varchar(32);uniqueIndex"`
	EventType string    `gorm:"column:event_type;type:varchar(100);index"`
	EventKey  string    `gorm:"column:event_key;type:varchar(64)"`
	Payload   string    `gorm:"column:payload;type:text"`
	Status    string    `gorm:"column:status;type:varchar(20);index;default:'pending'"`
	CreatedAt time.Time `gorm:"column:created_at;index"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName 指定表名
func (OutboxMessage) TableName() string {
	return "operation_outbox_messages"
}

// OutboxEventPublisher 实现 domain.EventPublisher，使用 Outbox 模式
type OutboxEventPublisher struct {
	db *gorm.DB
}

// NewOutboxEventPublisher 创建 OutboxEventPublisher 实例
func NewOutboxEventPublisher(db *gorm.DB) *OutboxEventPublisher {
	return &OutboxEventPublisher{db: db}
}

// Publish 将事件写入 outbox 表；若 ctx 携带事务则加入该事务
func (p *OutboxEventPublisher) Publish(ctx context.Context, eventType, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := &OutboxMessage{
		EventID:   fmt.Sprintf("EVT-%d", idgen.GenID()),
		EventType: eventType,
		EventKey:  key,
		Payload:   string(data),
		Status:    "pending",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	return p.getDB(ctx).Create(message).Error
}

func (p *OutboxEventPublisher) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return p.db.WithContext(ctx)
}

// OutboxRelay 周期性地把 pending 的 outbox 记录转发到 Kafka
type OutboxRelay struct {
	db        *gorm.DB
	producer  *mq.KafkaProducer
	topic     string
	batchSize int
	interval  time.Duration
}

// NewOutboxRelay 创建 outbox 转发器
func NewOutboxRelay(db *gorm.DB, producer *mq.KafkaProducer, topic string) *OutboxRelay {
	return &OutboxRelay{
		db:        db,
		producer:  producer,
		topic:     topic,
		batchSize: 100,
		interval:  time.Second,
	}
}

// Run 循环转发直到 ctx 取消
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.relayBatch(ctx); err != nil {
				logger.Error(ctx, "outbox relay batch failed", "error", err)
			}
		}
	}
}

// relayBatch 转发一批 pending 消息；发送成功后标记为 sent
func (r *OutboxRelay) relayBatch(ctx context.Context) error {
	var messages []OutboxMessage
	if err := r.db.WithContext(ctx).
		Where("status = ?", "pending").
		Order("id asc").
		Limit(r.batchSize).
		Find(&messages).Error; err != nil {
		return err
	}

	for i := range messages {
		msg := &messages[i]
		if err := r.producer.SendRaw(ctx, r.topic, msg.EventKey, []byte(msg.Payload)); err != nil {
			// 发送失败保持 pending，下一轮重试
			return err
		}
		if err := r.db.WithContext(ctx).Model(msg).
			Updates(map[string]any{"status": "sent", "updated_at": time.Now()}).Error; err != nil {
			return err
		}
	}
	return nil
}

// CleanupSent 清理已发送的历史消息
func (r *OutboxRelay) CleanupSent(ctx context.Context, before time.Time) error {
	return r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", "sent", before).
		Delete(&OutboxMessage{}).Error
}
