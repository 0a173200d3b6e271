package postgres

import (
	"context"
	"database/sql"
	"errors"
	"slices"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
)

var messageSelect = []string{"id", "conversation_id", "seq", "sender_id", "body", "type", "client_message_id", "created_at"}

func scanMessage(r rowScanner) (*model.Message, error) {
	var (
		m        model.Message
		clientID sql.NullString
	)
	if err := r.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.SenderID, &m.Body, &m.Type, &clientID, &m.CreatedAt); err != nil {
		return nil, err
	}
	if clientID.Valid {
		m.ClientMessageID = &clientID.String
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

// lockConversationQuery reads the conversation's seq head and holds its row
// lock until the transaction ends.
func lockConversationQuery(id uuid.UUID) (string, []any) {
	return builder().Select("last_seq", "last_message_at").
		From(builder().Table(conversationsTable)).
		Where(entsql.EQ("id", id)).
		ForUpdate().
		Query()
}

func incrementUnreadQuery(conversationID, senderID uuid.UUID) (string, []any) {
	return builder().Update(participantsTable).
		Add("unread_count", 1).
		Where(entsql.And(
			entsql.EQ("conversation_id", conversationID),
			entsql.NEQ("user_id", senderID),
		)).
		Query()
}

// AppendMessage serializes appends per conversation by locking the
// conversation row. The seq assignment, the last message snapshot and the
// unread increments commit together.
func (s *Store) AppendMessage(ctx context.Context, in model.NewMessage) (*model.Message, bool, error) {
	var (
		msg       *model.Message
		duplicate bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query, args := lockConversationQuery(in.ConversationID)

		var (
			lastSeq int64
			lastAt  sql.NullTime
		)
		err := tx.QueryRowContext(ctx, query, args...).Scan(&lastSeq, &lastAt)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}

		member, err := isParticipant(ctx, tx, in.ConversationID, in.SenderID)
		if err != nil {
			return err
		}
		if !member {
			return model.ErrNotParticipant
		}

		if in.ClientMessageID != nil {
			query, args := builder().Select(messageSelect...).
				From(builder().Table(messagesTable)).
				Where(entsql.And(
					entsql.EQ("conversation_id", in.ConversationID),
					entsql.EQ("client_message_id", *in.ClientMessageID),
				)).
				Query()
			prev, err := scanMessage(tx.QueryRowContext(ctx, query, args...))
			switch {
			case err == nil:
				msg, duplicate = prev, true
				return nil
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}
		}

		createdAt := s.now().UTC()
		if lastAt.Valid && createdAt.Before(lastAt.Time) {
			createdAt = lastAt.Time.UTC()
		}
		msg = &model.Message{
			ID:              in.ID,
			ConversationID:  in.ConversationID,
			Seq:             lastSeq + 1,
			SenderID:        in.SenderID,
			Body:            in.Body,
			Type:            in.Type,
			ClientMessageID: in.ClientMessageID,
			CreatedAt:       createdAt,
		}

		query, args = builder().Insert(messagesTable).
			Columns(messageSelect...).
			Values(msg.ID, msg.ConversationID, msg.Seq, msg.SenderID, msg.Body, string(msg.Type), msg.ClientMessageID, msg.CreatedAt).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}

		query, args = builder().Update(conversationsTable).
			Set("last_seq", msg.Seq).
			Set("last_message_at", msg.CreatedAt).
			Set("activity_at", msg.CreatedAt).
			Set("last_message_id", msg.ID).
			Set("last_message_sender_id", msg.SenderID).
			Set("last_message_body", msg.Body).
			Set("last_message_type", string(msg.Type)).
			Where(entsql.EQ("id", msg.ConversationID)).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}

		query, args = incrementUnreadQuery(msg.ConversationID, msg.SenderID)
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, false, translate("append message", err)
	}
	return msg, duplicate, nil
}

func (s *Store) FetchMessages(ctx context.Context, conversationID uuid.UUID, page model.Page) ([]*model.Message, error) {
	preds := []*entsql.Predicate{entsql.EQ("conversation_id", conversationID)}
	if page.After > 0 {
		preds = append(preds, entsql.GT("seq", page.After))
	}
	if page.Before > 0 {
		preds = append(preds, entsql.LT("seq", page.Before))
	}

	// A before-only page is the newest slice below the bound, read backwards.
	backwards := page.Before > 0 && page.After == 0
	order := entsql.Asc("seq")
	if backwards {
		order = entsql.Desc("seq")
	}

	sel := builder().Select(messageSelect...).
		From(builder().Table(messagesTable)).
		Where(entsql.And(preds...)).
		OrderBy(order)
	if page.Limit > 0 {
		sel.Limit(page.Limit)
	}
	query, args := sel.Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate("fetch messages", err)
	}
	defer rows.Close()

	out := []*model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, translate("fetch messages", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("fetch messages", err)
	}
	if backwards {
		slices.Reverse(out)
	}
	return out, nil
}

func isParticipant(ctx context.Context, q queryer, conversationID, userID uuid.UUID) (bool, error) {
	query, args := builder().Select("user_id").
		From(builder().Table(participantsTable)).
		Where(entsql.And(
			entsql.EQ("conversation_id", conversationID),
			entsql.EQ("user_id", userID),
		)).
		Query()

	var got uuid.UUID
	err := q.QueryRowContext(ctx, query, args...).Scan(&got)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}
