package entity

import (
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		raw  string
		want NotificationKind
	}{
		{"comment", KindComment},
		{"like", KindLike},
		{"new_follower", KindNewFollower},
		{"poke", KindUnknown},
		{"", KindUnknown},
	}

	for _, tt := range tests {
		if got := ParseKind(tt.raw); got != tt.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	actorID := int64(7)
	postID := int64(3)
	avatar := "a.png"
	n := Notification{
		ID:          1,
		RecipientID: 42,
		ActorID:     &actorID,
		Kind:        KindComment,
		PostID:      &postID,
		Actor:       &ActorProfile{ID: 7, Username: "lina", AvatarURL: &avatar},
	}

	clone := n.Clone()
	*clone.ActorID = 99
	*clone.PostID = 99
	clone.Actor.Username = "mallory"
	*clone.Actor.AvatarURL = "b.png"

	if *n.ActorID != 7 || *n.PostID != 3 {
		t.Error("clone shares id pointers with the original")
	}
	if n.Actor.Username != "lina" || *n.Actor.AvatarURL != "a.png" {
		t.Error("clone shares the actor with the original")
	}
}
