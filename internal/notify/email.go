package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
	"github.com/Alijeyrad/carelink/pkg/email"
)

type ConversationGetter interface {
	GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error)
}

type UserLookup interface {
	Users(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.User, error)
}

// Watcher reports live viewers on any instance. *presence.Tracker
// implements it.
type Watcher interface {
	Watching(ctx context.Context, conversationID, userID uuid.UUID) bool
}

type EmailConfig struct {
	AppName      string
	BaseURL      string
	PrimaryColor string
}

// OfflineEmail emails every participant of a job's conversation who is not
// the sender, is not watching the conversation on any instance and has an
// email address.
type OfflineEmail struct {
	convs   ConversationGetter
	users   UserLookup
	watcher Watcher
	sender  email.Sender
	cfg     EmailConfig
}

func NewOfflineEmail(convs ConversationGetter, users UserLookup, watcher Watcher, sender email.Sender, cfg EmailConfig) *OfflineEmail {
	return &OfflineEmail{convs: convs, users: users, watcher: watcher, sender: sender, cfg: cfg}
}

func (n *OfflineEmail) Handle(ctx context.Context, job Job) error {
	conv, err := n.convs.GetConversation(ctx, job.ConversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	var offline []uuid.UUID
	for _, p := range conv.Participants {
		if p.UserID == job.SenderID || n.watcher.Watching(ctx, conv.ID, p.UserID) {
			continue
		}
		offline = append(offline, p.UserID)
	}
	if len(offline) == 0 {
		return nil
	}

	users, err := n.users.Users(ctx, append(offline, job.SenderID))
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}
	senderName := users[job.SenderID].Profile.DisplayName

	var errs []error
	for _, id := range offline {
		u, ok := users[id]
		if !ok || u.Profile.Email == "" {
			continue
		}
		msg := email.BuildNewMessageEmail(email.NewMessageEmailData{
			To:             u.Profile.Email,
			RecipientName:  u.Profile.DisplayName,
			SenderName:     senderName,
			ConversationID: conv.ID.String(),
			Preview:        job.Preview,
			AppName:        n.cfg.AppName,
			BaseURL:        n.cfg.BaseURL,
			PrimaryColor:   n.cfg.PrimaryColor,
		})
		if err := n.sender.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
