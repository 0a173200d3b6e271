package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
)

// MarkRead resets the counter with a single conditional UPDATE, so a mark
// racing an append either lands before the increment (leaving 1) or after
// it (leaving 0). It never goes below zero.
func (s *Store) MarkRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) (model.Participant, bool, error) {
	query, args := markReadQuery(conversationID, userID, at)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return model.Participant{}, false, translate("mark read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Participant{}, false, translate("mark read", err)
	}

	p, err := s.participant(ctx, conversationID, userID)
	if err != nil {
		return model.Participant{}, false, translate("mark read", err)
	}
	return p, n > 0, nil
}

// markReadQuery only touches a row that has something unread or has never
// been read.
func markReadQuery(conversationID, userID uuid.UUID, at time.Time) (string, []any) {
	return builder().Update(participantsTable).
		Set("unread_count", 0).
		Set("last_read_at", at.UTC()).
		Where(entsql.And(
			entsql.EQ("conversation_id", conversationID),
			entsql.EQ("user_id", userID),
			entsql.Or(entsql.GT("unread_count", 0), entsql.IsNull("last_read_at")),
		)).
		Query()
}

func (s *Store) participant(ctx context.Context, conversationID, userID uuid.UUID) (model.Participant, error) {
	query, args := builder().Select("unread_count", "last_read_at", "joined_at").
		From(builder().Table(participantsTable)).
		Where(entsql.And(
			entsql.EQ("conversation_id", conversationID),
			entsql.EQ("user_id", userID),
		)).
		Query()

	p := model.Participant{ConversationID: conversationID, UserID: userID}
	var lastRead sql.NullTime
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&p.UnreadCount, &lastRead, &p.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := getConversation(ctx, s.db, entsql.EQ("id", conversationID)); err != nil {
			return model.Participant{}, err
		}
		return model.Participant{}, model.ErrNotParticipant
	}
	if err != nil {
		return model.Participant{}, err
	}
	if lastRead.Valid {
		t := lastRead.Time.UTC()
		p.LastReadAt = &t
	}
	p.JoinedAt = p.JoinedAt.UTC()
	return p, nil
}
