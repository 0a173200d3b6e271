package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	conversationsTable = "conversations"
	participantsTable  = "participants"
	messagesTable      = "messages"
)

var (
	conversationColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "type", Type: field.TypeEnum, Enums: []string{"direct", "group"}},
		{Name: "title", Type: field.TypeString, Nullable: true, Size: 200},
		{Name: "context_type", Type: field.TypeString, Nullable: true, Size: 64},
		{Name: "context_id", Type: field.TypeUUID, Nullable: true},
		{Name: "pair_key", Type: field.TypeString, Nullable: true, Size: 73},
		{Name: "created_by", Type: field.TypeUUID},
		{Name: "created_at", Type: field.TypeTime},
		// activity_at is last_message_at, or created_at until the first message.
		{Name: "activity_at", Type: field.TypeTime},
		{Name: "last_seq", Type: field.TypeInt64, Default: 0},
		{Name: "last_message_at", Type: field.TypeTime, Nullable: true},
		{Name: "last_message_id", Type: field.TypeUUID, Nullable: true},
		{Name: "last_message_sender_id", Type: field.TypeUUID, Nullable: true},
		{Name: "last_message_body", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "last_message_type", Type: field.TypeString, Nullable: true, Size: 16},
	}
	conversationsSchema = &schema.Table{
		Name:       conversationsTable,
		Columns:    conversationColumns,
		PrimaryKey: []*schema.Column{conversationColumns[0]},
		Indexes: []*schema.Index{
			{Name: "conversations_pair_key_key", Unique: true, Columns: []*schema.Column{conversationColumns[5]}},
			{Name: "conversations_context", Columns: []*schema.Column{conversationColumns[3], conversationColumns[4]}},
		},
	}

	participantColumns = []*schema.Column{
		{Name: "conversation_id", Type: field.TypeUUID},
		{Name: "user_id", Type: field.TypeUUID},
		{Name: "unread_count", Type: field.TypeInt64, Default: 0},
		{Name: "last_read_at", Type: field.TypeTime, Nullable: true},
		{Name: "joined_at", Type: field.TypeTime},
	}
	participantsSchema = &schema.Table{
		Name:       participantsTable,
		Columns:    participantColumns,
		PrimaryKey: []*schema.Column{participantColumns[0], participantColumns[1]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "participants_conversation_fk",
				Columns:    []*schema.Column{participantColumns[0]},
				RefColumns: []*schema.Column{conversationColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "participants_user_id", Columns: []*schema.Column{participantColumns[1]}},
		},
	}

	messageColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "conversation_id", Type: field.TypeUUID},
		{Name: "seq", Type: field.TypeInt64},
		{Name: "sender_id", Type: field.TypeUUID},
		{Name: "body", Type: field.TypeString, Size: 2147483647},
		{Name: "type", Type: field.TypeEnum, Enums: []string{"user", "system"}},
		{Name: "client_message_id", Type: field.TypeString, Nullable: true, Size: 128},
		{Name: "created_at", Type: field.TypeTime},
	}
	messagesSchema = &schema.Table{
		Name:       messagesTable,
		Columns:    messageColumns,
		PrimaryKey: []*schema.Column{messageColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "messages_conversation_fk",
				Columns:    []*schema.Column{messageColumns[1]},
				RefColumns: []*schema.Column{conversationColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "messages_conversation_seq_key", Unique: true, Columns: []*schema.Column{messageColumns[1], messageColumns[2]}},
			{Name: "messages_conversation_client_key", Unique: true, Columns: []*schema.Column{messageColumns[1], messageColumns[6]}},
		},
	}

	// Tables lists every table owned by the messaging store.
	Tables = []*schema.Table{conversationsSchema, participantsSchema, messagesSchema}
)

func init() {
	participantsSchema.ForeignKeys[0].RefTable = conversationsSchema
	messagesSchema.ForeignKeys[0].RefTable = conversationsSchema
}

// Migrate creates or upgrades the messaging tables and their indexes.
func Migrate(ctx context.Context, db *sql.DB, opts ...schema.MigrateOption) error {
	drv := entsql.OpenDB(dialect.Postgres, db)
	m, err := schema.NewMigrate(drv, opts...)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("migrate messaging tables: %w", err)
	}
	return nil
}
