package group

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/user"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("group not found")
	ErrMemberNotFound  = core.NewNotFoundError("member not found")
	ErrAlreadyMember   = core.NewConflictError("user is already a member of this group")
	ErrRemoveAdmin     = core.NewConflictError("the group admin cannot be removed")
	defaultMessagePage = 50
	maxMessagePage     = 200
)

type (
	Repository interface {
		CreateGroup(ctx context.Context, g Group) (Group, error)
		GetGroup(ctx context.Context, id string) (Group, error)
		// QueryGroups returns the groups userID is a member of.
		QueryGroups(ctx context.Context, userID string) ([]Group, error)
		AddMember(ctx context.Context, groupID, userID string) error
		RemoveMember(ctx context.Context, groupID, userID string) error
		SetLastMessage(ctx context.Context, msg Message) error
		DeleteGroup(ctx context.Context, id string) error
	}

	// MessageStore keeps group messages. It is backed by the SQL database or MongoDB.
	MessageStore interface {
		CreateMessage(ctx context.Context, msg Message) (Message, error)
		QueryMessages(ctx context.Context, groupID string, q MessageQuery) ([]Message, error)
		DeleteMessages(ctx context.Context, groupID string) error
	}

	Service interface {
		Create(ctx context.Context, usr user.User, ng NewGroup) (Group, error)
		// ListForUser returns the user's groups, most recent activity first.
		ListForUser(ctx context.Context, usr user.User) ([]Group, error)
		Get(ctx context.Context, usr user.User, id string) (Group, error)
		IsMember(ctx context.Context, userID, groupID string) (bool, error)
		SearchUsers(ctx context.Context, usr user.User, groupID, name string) ([]user.User, error)
		AddMember(ctx context.Context, usr user.User, groupID, userID string) (Group, error)
		RemoveMember(ctx context.Context, usr user.User, groupID, userID string) (Group, error)
		Delete(ctx context.Context, usr user.User, id string) error
		SendMessage(ctx context.Context, usr user.User, groupID string, nm NewMessage) (Message, error)
		ListMessages(ctx context.Context, usr user.User, groupID string, q MessageQuery) ([]Message, error)
	}

	service struct {
		db       core.Transactor
		repo     Repository
		msgs     MessageStore
		userRepo user.Repository
		pub      core.EventPublisher
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.Transactor,
	repo Repository,
	msgs MessageStore,
	userRepo user.Repository,
	pub core.EventPublisher,
	logger core.Logger,
) Service {
	return &service{db: db, repo: repo, msgs: msgs, userRepo: userRepo, pub: pub, logger: logger}
}

func (svc *service) publish(ctx context.Context, typ, groupID string, data interface{}) {
	core.PublishEvent(ctx, svc.pub, svc.logger, typ, core.GroupTopic(groupID), data)
}

func (svc *service) Create(ctx context.Context, usr user.User, ng NewGroup) (Group, error) {
	return svc.repo.CreateGroup(ctx, Group{
		Name:        ng.Name,
		Description: ng.Description,
		AdminID:     usr.ID,
		MemberIDs:   []string{usr.ID},
		CreatedAt:   core.Now(),
	})
}

func (svc *service) ListForUser(ctx context.Context, usr user.User) ([]Group, error) {
	groups, err := svc.repo.QueryGroups(ctx, usr.ID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].LastActivity().After(groups[j].LastActivity())
	})
	return groups, nil
}

// Get returns the group if usr is a member of it.
func (svc *service) Get(ctx context.Context, usr user.User, id string) (Group, error) {
	g, err := svc.repo.GetGroup(ctx, id)
	if err != nil {
		return Group{}, err
	}
	if !g.HasMember(usr.ID) {
		return Group{}, core.ErrForbidden
	}
	return g, nil
}

func (svc *service) IsMember(ctx context.Context, userID, groupID string) (bool, error) {
	g, err := svc.repo.GetGroup(ctx, groupID)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return g.HasMember(userID), nil
}

// SearchUsers finds users who can be added to the group.
func (svc *service) SearchUsers(ctx context.Context, usr user.User, groupID, name string) ([]user.User, error) {
	g, err := svc.Get(ctx, usr, groupID)
	if err != nil {
		return nil, err
	}
	name = core.CleanString(name)
	if name == "" {
		return []user.User{}, nil
	}
	return svc.userRepo.SearchUsersByName(ctx, name, 20, g.MemberIDs...)
}

// AddMember adds a user to the group. Any member may add users.
func (svc *service) AddMember(ctx context.Context, usr user.User, groupID, userID string) (Group, error) {
	g, err := svc.Get(ctx, usr, groupID)
	if err != nil {
		return Group{}, err
	}
	if g.HasMember(userID) {
		return Group{}, ErrAlreadyMember
	}
	member, err := svc.userRepo.GetUser(ctx, user.GetFilter{ID: userID})
	if err != nil {
		return Group{}, err
	}
	if member.IsDeleted {
		return Group{}, user.ErrNotFound
	}

	if err = svc.repo.AddMember(ctx, g.ID, member.ID); err != nil {
		return Group{}, errors.Wrap(err, "adding member")
	}
	g.MemberIDs = append(g.MemberIDs, member.ID)

	data := map[string]string{"group_id": g.ID, "user_id": member.ID}
	svc.publish(ctx, core.EventMemberAdded, g.ID, data)
	core.PublishEvent(ctx, svc.pub, svc.logger, core.EventMemberAdded, core.UserTopic(member.ID), data)
	return g, nil
}

// RemoveMember removes a user from the group. Only the group admin may do so.
func (svc *service) RemoveMember(ctx context.Context, usr user.User, groupID, userID string) (Group, error) {
	g, err := svc.repo.GetGroup(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	if g.AdminID != usr.ID {
		return Group{}, core.ErrForbidden
	}
	if userID == g.AdminID {
		return Group{}, ErrRemoveAdmin
	}
	if !g.HasMember(userID) {
		return Group{}, ErrMemberNotFound
	}

	if err = svc.repo.RemoveMember(ctx, g.ID, userID); err != nil {
		return Group{}, errors.Wrap(err, "removing member")
	}
	members := make([]string, 0, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		if id != userID {
			members = append(members, id)
		}
	}
	g.MemberIDs = members

	data := map[string]string{"group_id": g.ID, "user_id": userID}
	svc.publish(ctx, core.EventMemberRemoved, g.ID, data)
	core.PublishEvent(ctx, svc.pub, svc.logger, core.EventMemberRemoved, core.UserTopic(userID), data)
	return g, nil
}

func (svc *service) Delete(ctx context.Context, usr user.User, id string) error {
	g, err := svc.repo.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if g.AdminID != usr.ID {
		return core.ErrForbidden
	}

	err = svc.db.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.msgs.DeleteMessages(ctx, g.ID); err != nil {
			return errors.Wrap(err, "deleting messages")
		}
		return svc.repo.DeleteGroup(ctx, g.ID)
	})
	if err != nil {
		return err
	}
	svc.publish(ctx, core.EventGroupDeleted, g.ID, map[string]string{"group_id": g.ID})
	return nil
}

func (svc *service) SendMessage(ctx context.Context, usr user.User, groupID string, nm NewMessage) (Message, error) {
	var msg Message
	err := svc.db.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := svc.Get(ctx, usr, groupID); err != nil {
			return err
		}
		var err error
		if msg, err = svc.msgs.CreateMessage(ctx, Message{
			GroupID:    groupID,
			SenderID:   usr.ID,
			SenderName: usr.Name,
			Text:       nm.Text,
			CreatedAt:  core.Now(),
		}); err != nil {
			return errors.Wrap(err, "creating message")
		}
		return errors.Wrap(svc.repo.SetLastMessage(ctx, msg), "setting last message")
	})
	if err != nil {
		return Message{}, err
	}
	svc.publish(ctx, core.EventMessageCreated, groupID, msg)
	return msg, nil
}

func (svc *service) ListMessages(ctx context.Context, usr user.User, groupID string, q MessageQuery) ([]Message, error) {
	if _, err := svc.Get(ctx, usr, groupID); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = defaultMessagePage
	} else if q.Limit > maxMessagePage {
		q.Limit = maxMessagePage
	}
	return svc.msgs.QueryMessages(ctx, groupID, q)
}
