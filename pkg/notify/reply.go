package notify

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"mediakeeper/pkg/database"
	"mediakeeper/pkg/twitter"
)

// maxReplyLength is the upstream status length limit in characters
const maxReplyLength = 280

// StatusPoster posts a status on the origin service
type StatusPoster interface {
	UpdateStatus(ctx context.Context, text, inReplyTo string) (*twitter.Tweet, error)
}

// PendingRecorder remembers posted summaries so they can be taken down later
type PendingRecorder interface {
	AddPending(ctx context.Context, p database.PendingTarget) error
}

// ReplyChannel posts the summary on the origin service mentioning ReplyTo,
// and records the post as a pending deletion target.
type ReplyChannel struct {
	poster   StatusPoster
	recorder PendingRecorder
	replyTo  string
	now      func() time.Time
}

// NewReplyChannel creates the origin-service reply channel
func NewReplyChannel(poster StatusPoster, recorder PendingRecorder, replyTo string) *ReplyChannel {
	return &ReplyChannel{
		poster:   poster,
		recorder: recorder,
		replyTo:  twitter.SanitizeScreenName(replyTo),
		now:      time.Now,
	}
}

func (r *ReplyChannel) Name() string { return "reply" }

func (r *ReplyChannel) Send(ctx context.Context, msg Message) error {
	text := msg.Text()
	if r.replyTo != "" {
		text = "@" + r.replyTo + " " + text
	}
	text = truncateRunes(text, maxReplyLength)

	posted, err := r.poster.UpdateStatus(ctx, text, "")
	if err != nil {
		return fmt.Errorf("failed to post summary: %w", err)
	}
	if r.recorder == nil {
		return nil
	}

	target := database.PendingTarget{
		PostID:    posted.IDString(),
		CreatedAt: r.now(),
		Body:      text,
		Added:     msg.Added,
		Removed:   msg.Removed,
	}
	if err := r.recorder.AddPending(ctx, target); err != nil {
		return fmt.Errorf("failed to record summary post %s: %w", target.PostID, err)
	}
	return nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
