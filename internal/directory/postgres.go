package directory

import (
	"context"
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/Alijeyrad/carelink/internal/contact"
	"github.com/Alijeyrad/carelink/internal/model"
)

var _ Directory = (*Postgres)(nil)

// Postgres reads the platform's identity and relationship tables. The
// tables are owned by other services; nothing here writes to them.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Snapshot(ctx context.Context) (*contact.Graph, error) {
	users, err := p.loadUsers(ctx, nil)
	if err != nil {
		return nil, err
	}
	g := &contact.Graph{}
	for _, u := range users {
		g.Users = append(g.Users, u)
	}

	if g.NurseMembers, err = p.loadEdges(ctx, "nurse_assignments", "nurse_id"); err != nil {
		return nil, err
	}
	if g.CarerMembers, err = p.loadEdges(ctx, "carer_links", "carer_id"); err != nil {
		return nil, err
	}
	if g.FacilityMembers, err = p.loadEdges(ctx, "facility_members", "admin_id"); err != nil {
		return nil, err
	}
	return g, nil
}

func (p *Postgres) Users(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.User, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]model.User{}, nil
	}
	users, err := p.loadUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]model.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// loadUsers returns users ordered by id; ids == nil loads everyone.
func (p *Postgres) loadUsers(ctx context.Context, ids []uuid.UUID) ([]model.User, error) {
	b := entsql.Dialect(dialect.Postgres)
	u := b.Table("users").As("u")
	r := b.Table("user_roles").As("r")

	sel := b.Select(u.C("id"), u.C("display_name"), u.C("avatar_url"), u.C("email"), r.C("role")).
		From(u).
		LeftJoin(r).On(u.C("id"), r.C("user_id")).
		OrderBy(u.C("id"), r.C("role"))
	if ids != nil {
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		sel.Where(entsql.In(u.C("id"), args...))
	}
	query, args := sel.Query()

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var (
			id                  uuid.UUID
			name, avatar, email sql.NullString
			role                sql.NullString
		)
		if err := rows.Scan(&id, &name, &avatar, &email, &role); err != nil {
			return nil, fmt.Errorf("load users: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].ID != id {
			out = append(out, model.User{
				ID: id,
				Profile: model.Profile{
					UserID:      id,
					DisplayName: name.String,
					AvatarURL:   avatar.String,
					Email:       email.String,
				},
			})
		}
		if role.Valid {
			last := &out[len(out)-1]
			last.Roles = append(last.Roles, model.Role(role.String))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return out, nil
}

func (p *Postgres) loadEdges(ctx context.Context, table, from string) (map[uuid.UUID][]uuid.UUID, error) {
	b := entsql.Dialect(dialect.Postgres)
	query, args := b.Select(from, "member_id").
		From(b.Table(table)).
		OrderBy(from, "member_id").
		Query()

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]uuid.UUID)
	for rows.Next() {
		var src, member uuid.UUID
		if err := rows.Scan(&src, &member); err != nil {
			return nil, fmt.Errorf("load %s: %w", table, err)
		}
		out[src] = append(out[src], member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	return out, nil
}
