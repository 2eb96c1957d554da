package domain

import "time"

// GroupStatus represents the current status of a group.
//
// A group starts Open and advances to Locked when its admin closes it.
// Completed is set by the trip-completion flow, which lives outside this
// service; nothing here transitions a group to Completed.
type GroupStatus string

const (
	GroupStatusOpen      GroupStatus = "Open"
	GroupStatusLocked    GroupStatus = "Locked"
	GroupStatusCompleted GroupStatus = "Completed"
)

// MemberRole is the role of a member inside one group.
type MemberRole string

const (
	MemberRoleMember MemberRole = "member"
	MemberRoleAdmin  MemberRole = "admin"
)

const (
	MinSeatCount = 2
	MaxSeatCount = 4
)

// Member is one seat holder of a group.
type Member struct {
	UserID   string
	Role     MemberRole
	JoinedAt time.Time
}

// Group is a capacity-bounded set of users sharing one ride.
//
// Members are kept in insertion order; position 0 is the earliest remaining
// joiner. Version is bumped by the store on every write and is used as the
// optimistic concurrency token.
type Group struct {
	ID          string
	Name        string
	Description string
	Members     []Member
	Route       Route
	DateTime    time.Time
	SeatCount   int
	Status      GroupStatus
	ChatRoomID  string
	Version     int64
	CreatedAt   time.Time
}

// IndexOf returns the position of userID in the member list, or -1.
func (g Group) IndexOf(userID string) int {
	for i, m := range g.Members {
		if m.UserID == userID {
			return i
		}
	}
	return -1
}

// IsMember reports whether userID holds a seat.
func (g Group) IsMember(userID string) bool {
	return g.IndexOf(userID) >= 0
}

// IsAdmin reports whether userID is the admin member.
func (g Group) IsAdmin(userID string) bool {
	i := g.IndexOf(userID)
	return i >= 0 && g.Members[i].Role == MemberRoleAdmin
}

// Admin returns the admin's user id, or "" for an empty group.
func (g Group) Admin() string {
	for _, m := range g.Members {
		if m.Role == MemberRoleAdmin {
			return m.UserID
		}
	}
	return ""
}

// SeatsLeft returns the number of free seats.
func (g Group) SeatsLeft() int {
	return g.SeatCount - len(g.Members)
}

// MemberIDs returns member user ids in order.
func (g Group) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.UserID
	}
	return ids
}

// clone copies g with its own member slice.
func (g Group) clone() Group {
	members := make([]Member, len(g.Members))
	copy(members, g.Members)
	g.Members = members
	return g
}

// WithMemberAdded returns a copy of g with userID appended as a member.
func (g Group) WithMemberAdded(userID string, now time.Time) (Group, error) {
	if g.Status != GroupStatusOpen {
		return g, ErrGroupNotOpen
	}
	if g.IsMember(userID) {
		return g, ErrAlreadyMember
	}
	if len(g.Members) >= g.SeatCount {
		return g, ErrGroupFull
	}

	next := g.clone()
	next.Members = append(next.Members, Member{
		UserID:   userID,
		Role:     MemberRoleMember,
		JoinedAt: now,
	})
	return next, nil
}

// WithMemberRemoved returns a copy of g without userID. If the admin left,
// the first remaining member is promoted. deleted is true when nobody is left
// and the group must be removed.
func (g Group) WithMemberRemoved(userID string) (next Group, deleted bool, err error) {
	i := g.IndexOf(userID)
	if i < 0 {
		return g, false, ErrNotMember
	}

	next = g.clone()
	next.Members = append(next.Members[:i], next.Members[i+1:]...)
	if len(next.Members) == 0 {
		return next, true, nil
	}
	if next.Admin() == "" {
		next.Members[0].Role = MemberRoleAdmin
	}
	return next, false, nil
}

// Locked returns a copy of g in Locked status. Locking an already locked
// group is a no-op and reports changed=false.
func (g Group) Locked(requesterID string) (next Group, changed bool, err error) {
	if !g.IsAdmin(requesterID) {
		return g, false, ErrNotGroupAdmin
	}
	switch g.Status {
	case GroupStatusLocked:
		return g, false, nil
	case GroupStatusOpen:
		next = g.clone()
		next.Status = GroupStatusLocked
		return next, true, nil
	default:
		return g, false, ErrGroupNotOpen
	}
}
