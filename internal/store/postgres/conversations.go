package postgres

import (
	"context"
	"database/sql"
	"errors"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/model"
)

var conversationSelect = []string{
	"id", "type", "title", "context_type", "context_id", "pair_key", "created_by", "created_at",
	"last_seq", "last_message_at", "last_message_id", "last_message_sender_id", "last_message_body", "last_message_type",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(r rowScanner, extra ...any) (*model.Conversation, error) {
	var (
		c           model.Conversation
		title       sql.NullString
		ctxType     sql.NullString
		ctxID       uuid.NullUUID
		pairKey     sql.NullString
		lastAt      sql.NullTime
		lastID      uuid.NullUUID
		lastSender  uuid.NullUUID
		lastBody    sql.NullString
		lastMsgType sql.NullString
	)
	dest := []any{
		&c.ID, &c.Type, &title, &ctxType, &ctxID, &pairKey, &c.CreatedBy, &c.CreatedAt,
		&c.LastSeq, &lastAt, &lastID, &lastSender, &lastBody, &lastMsgType,
	}
	if err := r.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if title.Valid {
		c.Title = &title.String
	}
	if ctxType.Valid && ctxID.Valid {
		c.Context = &model.ConversationContext{Type: ctxType.String, ID: ctxID.UUID}
	}
	if pairKey.Valid {
		c.PairKey = &pairKey.String
	}
	if lastAt.Valid {
		t := lastAt.Time.UTC()
		c.LastMessageAt = &t
	}
	if lastID.Valid {
		c.LastMessage = &model.LastMessage{
			ID:       lastID.UUID,
			Seq:      c.LastSeq,
			SenderID: lastSender.UUID,
			Body:     lastBody.String,
			Type:     model.MessageType(lastMsgType.String),
		}
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

// insertConversationQuery inserts the conversation row unless its pair key
// is taken. ON CONFLICT waits for a concurrent insert of the same pair to
// settle, so a losing racer gets no row back and reads the winner's
// committed one.
func insertConversationQuery(in model.NewConversation) (string, []any) {
	var contextType, contextID any
	if in.Context != nil {
		contextType, contextID = in.Context.Type, in.Context.ID
	}
	return builder().Insert(conversationsTable).
		Columns("id", "type", "title", "context_type", "context_id", "pair_key", "created_by", "created_at", "activity_at", "last_seq").
		Values(in.ID, string(in.Type), in.Title, contextType, contextID, in.PairKey(), in.CreatedBy, in.CreatedAt, in.CreatedAt, 0).
		OnConflict(entsql.ConflictColumns("pair_key"), entsql.DoNothing()).
		Returning("id").
		Query()
}

func (s *Store) CreateConversation(ctx context.Context, in model.NewConversation) (*model.Conversation, bool, error) {
	var (
		conv    *model.Conversation
		created bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		key := in.PairKey()
		query, args := insertConversationQuery(in)

		var id uuid.UUID
		err := tx.QueryRowContext(ctx, query, args...).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows) && key != nil:
			existing, err := getConversation(ctx, tx, entsql.EQ("pair_key", *key))
			if err != nil {
				return err
			}
			conv = existing
			return nil
		case err != nil:
			return err
		}

		pins := builder().Insert(participantsTable).
			Columns("conversation_id", "user_id", "unread_count", "joined_at")
		for _, uid := range in.Members {
			pins.Values(in.ID, uid, 0, in.CreatedAt)
		}
		query, args = pins.Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}

		conv, err = getConversation(ctx, tx, entsql.EQ("id", in.ID))
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, translate("create conversation", err)
	}
	return conv, created, nil
}

func (s *Store) FindDirect(ctx context.Context, a, b uuid.UUID) (*model.Conversation, error) {
	conv, err := getConversation(ctx, s.db, entsql.EQ("pair_key", model.PairKey(a, b)))
	if err != nil {
		return nil, translate("find direct conversation", err)
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	conv, err := getConversation(ctx, s.db, entsql.EQ("id", id))
	if err != nil {
		return nil, translate("get conversation", err)
	}
	return conv, nil
}

func getConversation(ctx context.Context, q queryer, where *entsql.Predicate) (*model.Conversation, error) {
	query, args := builder().Select(conversationSelect...).
		From(builder().Table(conversationsTable)).
		Where(where).
		Query()

	conv, err := scanConversation(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	parts, err := loadParticipants(ctx, q, conv.ID)
	if err != nil {
		return nil, err
	}
	conv.Participants = parts[conv.ID]
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context, userID uuid.UUID) ([]*model.ConversationSummary, error) {
	c := builder().Table(conversationsTable).As("c")
	p := builder().Table(participantsTable).As("p")

	cols := make([]string, 0, len(conversationSelect)+2)
	for _, name := range conversationSelect {
		cols = append(cols, c.C(name))
	}
	cols = append(cols, p.C("unread_count"), p.C("last_read_at"))

	query, args := builder().Select(cols...).
		From(c).
		Join(p).On(c.C("id"), p.C("conversation_id")).
		Where(entsql.EQ(p.C("user_id"), userID)).
		OrderBy(entsql.Desc(c.C("activity_at")), entsql.Desc(c.C("id"))).
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate("list conversations", err)
	}
	defer rows.Close()

	var (
		out []*model.ConversationSummary
		ids []uuid.UUID
	)
	for rows.Next() {
		var (
			unread   int64
			lastRead sql.NullTime
		)
		conv, err := scanConversation(rows, &unread, &lastRead)
		if err != nil {
			return nil, translate("list conversations", err)
		}
		sum := &model.ConversationSummary{Conversation: *conv, UnreadCount: unread}
		if lastRead.Valid {
			t := lastRead.Time.UTC()
			sum.LastReadAt = &t
		}
		out = append(out, sum)
		ids = append(ids, conv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list conversations", err)
	}

	if len(ids) == 0 {
		return []*model.ConversationSummary{}, nil
	}
	parts, err := loadParticipants(ctx, s.db, ids...)
	if err != nil {
		return nil, translate("list conversations", err)
	}
	for _, sum := range out {
		sum.Participants = parts[sum.ID]
	}
	return out, nil
}

func loadParticipants(ctx context.Context, q queryer, ids ...uuid.UUID) (map[uuid.UUID][]model.Participant, error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query, qargs := builder().Select("conversation_id", "user_id", "unread_count", "last_read_at", "joined_at").
		From(builder().Table(participantsTable)).
		Where(entsql.In("conversation_id", args...)).
		OrderBy("conversation_id", "joined_at", "user_id").
		Query()

	rows, err := q.QueryContext(ctx, query, qargs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]model.Participant, len(ids))
	for rows.Next() {
		var (
			p        model.Participant
			lastRead sql.NullTime
		)
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.UnreadCount, &lastRead, &p.JoinedAt); err != nil {
			return nil, err
		}
		if lastRead.Valid {
			t := lastRead.Time.UTC()
			p.LastReadAt = &t
		}
		p.JoinedAt = p.JoinedAt.UTC()
		out[p.ConversationID] = append(out[p.ConversationID], p)
	}
	return out, rows.Err()
}
