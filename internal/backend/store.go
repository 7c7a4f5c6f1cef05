package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"wamda.app/notifier/internal/entity"
	"wamda.app/notifier/pkg/apperror"
)

// channelFor names the pub/sub channel carrying one recipient's inserts.
func channelFor(recipientID int64) string {
	return fmt.Sprintf("user_notifications:%d", recipientID)
}

type gormStore struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewStore builds the Postgres-backed Store. The redis client may be nil;
// writes then skip the realtime fan-out.
func NewStore(db *gorm.DB, redisClient *redis.Client) Store {
	return &gormStore{db: db, redisClient: redisClient}
}

func (s *gormStore) RecentNotifications(ctx context.Context, recipientID int64, limit int) ([]entity.Notification, error) {
	return s.NotificationsPage(ctx, recipientID, limit, 0)
}

func (s *gormStore) NotificationsPage(ctx context.Context, recipientID int64, limit, offset int) ([]entity.Notification, error) {
	var notifications []entity.Notification
	err := s.db.WithContext(ctx).
		Where("recipient_user_id = ?", recipientID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Preload("Actor", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "avatar_url")
		}).
		Find(&notifications).Error
	return notifications, err
}

func (s *gormStore) MarkRead(ctx context.Context, recipientID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("recipient_user_id = ? AND id IN ?", recipientID, ids).
		Update("is_read", true).Error
}

func (s *gormStore) MarkAllRead(ctx context.Context, recipientID int64) error {
	return s.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("recipient_user_id = ? AND is_read = ?", recipientID, false).
		Update("is_read", true).Error
}

func (s *gormStore) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("recipient_user_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

func (s *gormStore) ActorProfile(ctx context.Context, actorID int64) (*entity.ActorProfile, error) {
	var profile entity.ActorProfile
	err := s.db.WithContext(ctx).
		Select("id", "username", "avatar_url").
		Where("id = ?", actorID).
		First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *gormStore) CreateNotification(ctx context.Context, n *entity.Notification) error {
	n.Kind = entity.ParseKind(string(n.Kind))

	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return err
	}

	// Publish to Redis if Redis is available
	if s.redisClient != nil {
		payload, err := json.Marshal(n)
		if err == nil {
			s.redisClient.Publish(ctx, channelFor(n.RecipientID), payload)
		}
	}

	return nil
}
