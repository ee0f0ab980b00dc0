// internal/storage/postgres/members.go
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"gymdesk/internal/membership"
)

// memberRow collects scan destinations for a projection of the members
// table and copies them onto a Member afterwards.
type memberRow struct {
	m          membership.Member
	gymID      uuid.NullUUID
	customData []byte
}

func (r *memberRow) dest(columns []string) []interface{} {
	out := make([]interface{}, len(columns))
	for i, c := range columns {
		switch c {
		case "id":
			out[i] = &r.m.ID
		case "user_id":
			out[i] = &r.m.UserID
		case "gym_id":
			out[i] = &r.gymID
		case "gym_name":
			out[i] = &r.m.GymName
		case "name":
			out[i] = &r.m.Name
		case "phone":
			out[i] = &r.m.Phone
		case "email":
			out[i] = &r.m.Email
		case "place":
			out[i] = &r.m.Place
		case "plan":
			out[i] = &r.m.Plan
		case "start_date":
			out[i] = &r.m.StartDate
		case "end_date":
			out[i] = &r.m.EndDate
		case "notes":
			out[i] = &r.m.Notes
		case "custom_data":
			out[i] = &r.customData
		case "created_at":
			out[i] = &r.m.CreatedAt
		case "updated_at":
			out[i] = &r.m.UpdatedAt
		}
	}
	return out
}

func (r *memberRow) member() (membership.Member, error) {
	m := r.m
	if r.gymID.Valid {
		id := r.gymID.UUID
		m.GymID = &id
	}
	if len(r.customData) > 0 {
		if err := json.Unmarshal(r.customData, &m.CustomData); err != nil {
			return m, fmt.Errorf("failed to decode custom data of member %s: %w", m.ID, err)
		}
		if len(m.CustomData) == 0 {
			m.CustomData = nil
		}
	}
	return m, nil
}

var allColumns = strings.Join(membership.Columns, ", ")

// ListMembers returns the owner's members ordered by end date, latest first.
func (s *Store) ListMembers(ctx context.Context, owner uuid.UUID, fields []string) ([]membership.Member, error) {
	if err := membership.ValidateFields(fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = membership.Columns
	}

	ctx, span := s.start(ctx, "postgres.list_members",
		attribute.String("user.id", owner.String()),
		attribute.StringSlice("fields", fields))
	defer span.End()

	// Columns are checked against membership.Columns above.
	query := fmt.Sprintf(`
		SELECT %s
		FROM members
		WHERE user_id = $1
		ORDER BY end_date DESC, id ASC
	`, strings.Join(fields, ", "))

	rows, err := s.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query members: %w", err))
	}
	defer rows.Close()

	members := make([]membership.Member, 0)
	for rows.Next() {
		var row memberRow
		if err := rows.Scan(row.dest(fields)...); err != nil {
			return nil, fail(span, fmt.Errorf("scan member: %w", err))
		}
		m, err := row.member()
		if err != nil {
			return nil, fail(span, err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate members: %w", err))
	}

	span.SetAttributes(attribute.Int("members.loaded", len(members)))
	return members, nil
}

// GetMember returns one of the owner's members.
func (s *Store) GetMember(ctx context.Context, owner, id uuid.UUID) (*membership.Member, error) {
	ctx, span := s.start(ctx, "postgres.get_member",
		attribute.String("user.id", owner.String()),
		attribute.String("member.id", id.String()))
	defer span.End()

	var row memberRow
	err := s.db.QueryRowContext(ctx, `
		SELECT `+allColumns+`
		FROM members
		WHERE id = $1 AND user_id = $2
	`, id, owner).Scan(row.dest(membership.Columns)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, membership.ErrNotFound
		}
		return nil, fail(span, fmt.Errorf("query member: %w", err))
	}
	m, err := row.member()
	if err != nil {
		return nil, fail(span, err)
	}
	return &m, nil
}

// InsertMember stores m.
func (s *Store) InsertMember(ctx context.Context, m *membership.Member) error {
	ctx, span := s.start(ctx, "postgres.insert_member",
		attribute.String("user.id", m.UserID.String()),
		attribute.String("member.id", m.ID.String()))
	defer span.End()

	customData, err := encodeCustomData(m.CustomData)
	if err != nil {
		return fail(span, err)
	}
	var gymID uuid.NullUUID
	if m.GymID != nil {
		gymID = uuid.NullUUID{UUID: *m.GymID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO members (`+allColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		m.ID, m.UserID, gymID, m.GymName, m.Name, m.Phone, m.Email, m.Place,
		string(m.Plan), m.StartDate, m.EndDate, m.Notes, customData, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fail(span, fmt.Errorf("insert member: %w", err))
	}
	return nil
}

// UpdateMember applies patch to one of the owner's members and returns the
// stored result.
func (s *Store) UpdateMember(ctx context.Context, owner, id uuid.UUID, patch membership.MemberPatch) (*membership.Member, error) {
	ctx, span := s.start(ctx, "postgres.update_member",
		attribute.String("user.id", owner.String()),
		attribute.String("member.id", id.String()))
	defer span.End()

	fields := patch.Fields()
	sets := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields)+2)
	for i, f := range fields {
		v := f.Value
		if f.Column == "custom_data" {
			encoded, err := encodeCustomData(patch.CustomData)
			if err != nil {
				return nil, fail(span, err)
			}
			v = encoded
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", f.Column, i+1))
		args = append(args, v)
	}
	args = append(args, id, owner)

	query := fmt.Sprintf(`
		UPDATE members
		SET %s
		WHERE id = $%d AND user_id = $%d
		RETURNING %s
	`, strings.Join(sets, ", "), len(fields)+1, len(fields)+2, allColumns)

	var row memberRow
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(row.dest(membership.Columns)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, membership.ErrNotFound
		}
		return nil, fail(span, fmt.Errorf("update member: %w", err))
	}
	m, err := row.member()
	if err != nil {
		return nil, fail(span, err)
	}
	return &m, nil
}

// DeleteMember removes one of the owner's members.
func (s *Store) DeleteMember(ctx context.Context, owner, id uuid.UUID) error {
	ctx, span := s.start(ctx, "postgres.delete_member",
		attribute.String("user.id", owner.String()),
		attribute.String("member.id", id.String()))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE id = $1 AND user_id = $2`, id, owner)
	if err != nil {
		return fail(span, fmt.Errorf("delete member: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fail(span, fmt.Errorf("delete member: %w", err))
	}
	if n == 0 {
		return membership.ErrNotFound
	}
	return nil
}

func encodeCustomData(data map[string]string) ([]byte, error) {
	if data == nil {
		data = map[string]string{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode custom data: %w", err)
	}
	return b, nil
}
