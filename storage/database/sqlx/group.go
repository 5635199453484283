package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/group"
)

type groupRow struct {
	ID            string      `db:"id"`
	Name          string      `db:"name"`
	Description   string      `db:"description"`
	AdminID       string      `db:"admin_id"`
	CreatedAt     time.Time   `db:"created_at"`
	LastMessage   null.String `db:"last_message"`
	LastMessageAt null.Time   `db:"last_message_at"`
}

type memberRow struct {
	GroupID string `db:"group_id"`
	UserID  string `db:"user_id"`
}

type groupRepository struct {
	baseRepository
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(db *sqlx.DB) *groupRepository {
	return &groupRepository{baseRepository{db: db}}
}

func (repo groupRepository) fromRow(row groupRow, members []string) group.Group {
	if members == nil {
		members = []string{}
	}
	return group.Group{
		ID:            row.ID,
		Name:          row.Name,
		Description:   row.Description,
		AdminID:       row.AdminID,
		MemberIDs:     members,
		CreatedAt:     utc(row.CreatedAt),
		LastMessage:   row.LastMessage.String,
		LastMessageAt: timePtr(row.LastMessageAt),
	}
}

func (repo groupRepository) CreateGroup(ctx context.Context, g group.Group) (group.Group, error) {
	g.ID = uuid.New().String()
	row := groupRow{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		AdminID:     g.AdminID,
		CreatedAt:   g.CreatedAt.UTC(),
	}
	q := `INSERT INTO study_groups (id, name, description, admin_id, created_at)
		VALUES (:id, :name, :description, :admin_id, :created_at)`
	if _, err := repo.namedExec(ctx, q, row); err != nil {
		return group.Group{}, errors.Wrap(err, "inserting group")
	}
	for _, id := range g.MemberIDs {
		if err := repo.AddMember(ctx, g.ID, id); err != nil {
			return group.Group{}, err
		}
	}
	return repo.fromRow(row, g.MemberIDs), nil
}

func (repo groupRepository) members(ctx context.Context, groupIDs ...string) (map[string][]string, error) {
	members := make(map[string][]string, len(groupIDs))
	if len(groupIDs) == 0 {
		return members, nil
	}
	var rows []memberRow
	q := "SELECT group_id, user_id FROM group_members WHERE group_id IN (?) ORDER BY joined_at, user_id"
	if err := repo.selectIn(ctx, &rows, q, groupIDs); err != nil {
		return nil, errors.Wrap(err, "querying group members")
	}
	for _, row := range rows {
		members[row.GroupID] = append(members[row.GroupID], row.UserID)
	}
	return members, nil
}

func (repo groupRepository) GetGroup(ctx context.Context, id string) (group.Group, error) {
	if _, err := uuid.Parse(id); err != nil {
		return group.Group{}, group.ErrNotFound
	}
	var row groupRow
	if err := repo.get(ctx, &row, "SELECT * FROM study_groups WHERE id = ?", id); err != nil {
		return group.Group{}, trapNoRowsErr(err, group.ErrNotFound, "finding group")
	}
	members, err := repo.members(ctx, id)
	if err != nil {
		return group.Group{}, err
	}
	return repo.fromRow(row, members[id]), nil
}

func (repo groupRepository) QueryGroups(ctx context.Context, userID string) ([]group.Group, error) {
	var rows []groupRow
	q := `SELECT g.* FROM study_groups g JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = ? ORDER BY g.created_at DESC`
	if err := repo.selectAll(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	members, err := repo.members(ctx, ids...)
	if err != nil {
		return nil, err
	}

	groups := make([]group.Group, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, repo.fromRow(row, members[row.ID]))
	}
	return groups, nil
}

func (repo groupRepository) AddMember(ctx context.Context, groupID, userID string) error {
	_, err := repo.execute(ctx,
		"INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)",
		groupID, userID, core.Now(),
	)
	return errors.Wrap(err, "inserting group member")
}

func (repo groupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	res, err := repo.execute(ctx, "DELETE FROM group_members WHERE group_id = ? AND user_id = ?", groupID, userID)
	if err != nil {
		return errors.Wrap(err, "deleting group member")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return group.ErrMemberNotFound
	}
	return nil
}

func (repo groupRepository) SetLastMessage(ctx context.Context, msg group.Message) error {
	res, err := repo.execute(ctx,
		"UPDATE study_groups SET last_message = ?, last_message_at = ? WHERE id = ?",
		msg.Text, msg.CreatedAt.UTC(), msg.GroupID,
	)
	if err != nil {
		return errors.Wrap(err, "updating group")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return group.ErrNotFound
	}
	return nil
}

func (repo groupRepository) DeleteGroup(ctx context.Context, id string) error {
	// members and messages go with the group (ON DELETE CASCADE)
	res, err := repo.execute(ctx, "DELETE FROM study_groups WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting group")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return group.ErrNotFound
	}
	return nil
}

type messageRepository struct {
	baseRepository
}

var _ group.MessageStore = (*messageRepository)(nil) // interface compliance check

func NewMessageRepository(db *sqlx.DB) *messageRepository {
	return &messageRepository{baseRepository{db: db}}
}

type messageRow struct {
	ID         string    `db:"id"`
	GroupID    string    `db:"group_id"`
	SenderID   string    `db:"sender_id"`
	SenderName string    `db:"sender_name"`
	Text       string    `db:"text"`
	CreatedAt  time.Time `db:"created_at"`
}

func (repo messageRepository) CreateMessage(ctx context.Context, msg group.Message) (group.Message, error) {
	msg.ID = uuid.New().String()
	msg.CreatedAt = msg.CreatedAt.UTC()
	row := messageRow(msg)
	q := `INSERT INTO group_messages (id, group_id, sender_id, sender_name, text, created_at)
		VALUES (:id, :group_id, :sender_id, :sender_name, :text, :created_at)`
	if _, err := repo.namedExec(ctx, q, row); err != nil {
		return group.Message{}, errors.Wrap(err, "inserting message")
	}
	return msg, nil
}

func (repo messageRepository) QueryMessages(ctx context.Context, groupID string, mq group.MessageQuery) ([]group.Message, error) {
	q := "SELECT * FROM group_messages WHERE group_id = ?"
	args := []interface{}{groupID}
	switch {
	case !mq.Since.IsZero() && mq.After != "":
		q += " AND (created_at > ? OR (created_at = ? AND id > ?))"
		args = append(args, mq.Since.UTC(), mq.Since.UTC(), mq.After)
	case !mq.Since.IsZero():
		q += " AND created_at > ?"
		args = append(args, mq.Since.UTC())
	}
	q += " ORDER BY created_at, id LIMIT ?"
	args = append(args, mq.Limit)

	var rows []messageRow
	if err := repo.selectAll(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	msgs := make([]group.Message, 0, len(rows))
	for _, row := range rows {
		msg := group.Message(row)
		msg.CreatedAt = utc(msg.CreatedAt)
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (repo messageRepository) DeleteMessages(ctx context.Context, groupID string) error {
	_, err := repo.execute(ctx, "DELETE FROM group_messages WHERE group_id = ?", groupID)
	return errors.Wrap(err, "deleting messages")
}
