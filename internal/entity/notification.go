package entity

import (
	"time"
)

// NotificationKind is the closed set of events that can reach a recipient.
type NotificationKind string

const (
	KindComment     NotificationKind = "comment"
	KindLike        NotificationKind = "like"
	KindNewFollower NotificationKind = "new_follower"
	KindUnknown     NotificationKind = "unknown"
)

// ParseKind collapses anything outside the closed set to KindUnknown.
func ParseKind(raw string) NotificationKind {
	switch NotificationKind(raw) {
	case KindComment, KindLike, KindNewFollower:
		return NotificationKind(raw)
	default:
		return KindUnknown
	}
}

// ActorProfile is the denormalized projection of the user whose action
// generated a notification.
type ActorProfile struct {
	ID        int64   `gorm:"primaryKey" json:"id"`
	Username  string  `gorm:"size:50;uniqueIndex;not null" json:"username"`
	AvatarURL *string `gorm:"type:text" json:"avatar_url,omitempty"`
}

func (ActorProfile) TableName() string {
	return "profiles"
}

// Clone returns a deep copy safe to hand outside the engine.
func (p ActorProfile) Clone() ActorProfile {
	out := p
	if p.AvatarURL != nil {
		v := *p.AvatarURL
		out.AvatarURL = &v
	}
	return out
}

type Notification struct {
	ID          int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	RecipientID int64            `gorm:"column:recipient_user_id;not null;index" json:"recipient_user_id"`
	ActorID     *int64           `gorm:"column:actor_user_id" json:"actor_user_id,omitempty"` // nil for system-generated events
	Kind        NotificationKind `gorm:"column:type;size:50;not null" json:"type"`
	PostID      *int64           `json:"post_id,omitempty"`
	CommentID   *int64           `json:"comment_id,omitempty"`
	IsRead      bool             `gorm:"default:false" json:"is_read"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`

	// Association - pointer to avoid recursion if the profile ever links back
	Actor *ActorProfile `gorm:"foreignKey:ActorID" json:"actor,omitempty"`
}

// Clone returns a deep copy so snapshots never share pointers with the
// engine's internal list.
func (n Notification) Clone() Notification {
	out := n
	if n.ActorID != nil {
		v := *n.ActorID
		out.ActorID = &v
	}
	if n.PostID != nil {
		v := *n.PostID
		out.PostID = &v
	}
	if n.CommentID != nil {
		v := *n.CommentID
		out.CommentID = &v
	}
	if n.Actor != nil {
		a := n.Actor.Clone()
		out.Actor = &a
	}
	return out
}
