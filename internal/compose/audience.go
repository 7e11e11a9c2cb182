package compose

import (
	"errors"
	"fmt"
	"slices"

	"github.com/scfet/notification-client/internal/model"
)

// Audience is who a notification goes to.
type Audience string

const (
	AudienceAll            Audience = "all"
	AudienceStudents       Audience = "students"
	AudienceTeachers       Audience = "teachers"
	AudienceAdministrators Audience = "administrators"
	AudienceGroup          Audience = "group"
	AudienceSpecific       Audience = "specific"
)

var audienceLabels = map[Audience]string{
	AudienceAll:            "Everyone",
	AudienceStudents:       "Students",
	AudienceTeachers:       "Teachers",
	AudienceAdministrators: "Administrators",
	AudienceGroup:          "Group",
	AudienceSpecific:       "Specific user",
}

func (a Audience) Label() string {
	if l, ok := audienceLabels[a]; ok {
		return l
	}
	return string(a)
}

// AudienceOptions lists the audiences offered to role, in display order.
// Only administrators may address other administrators.
func AudienceOptions(role model.Role) []Audience {
	opts := []Audience{AudienceAll, AudienceStudents, AudienceTeachers}
	if role == model.RoleAdministrator {
		opts = append(opts, AudienceAdministrators)
	}
	return append(opts, AudienceGroup, AudienceSpecific)
}

// ErrEmptyGroup is returned when a group without students is selected.
var ErrEmptyGroup = errors.New("the selected group has no students")

// Selection tracks the chosen audience and the group or user it needs.
type Selection struct {
	Audience Audience
	Group    *model.Group
	User     *model.User

	ShowGroupSelector bool
	ShowUserSelector  bool

	options []Audience
}

// NewSelection starts with the first audience offered to role.
func NewSelection(role model.Role) Selection {
	s := Selection{options: AudienceOptions(role)}
	s.apply(s.options[0])
	return s
}

// Options returns the audiences this selection accepts.
func (s *Selection) Options() []Audience {
	return slices.Clone(s.options)
}

// SetAudience switches the audience and recomputes which selectors are
// shown. A group or user picked earlier is dropped when it no longer
// applies.
func (s *Selection) SetAudience(a Audience) error {
	if !slices.Contains(s.options, a) {
		return fmt.Errorf("audience %q not available", a)
	}
	s.apply(a)
	return nil
}

func (s *Selection) apply(a Audience) {
	s.Audience = a
	s.ShowGroupSelector = a == AudienceGroup
	s.ShowUserSelector = a == AudienceSpecific
	if !s.ShowGroupSelector {
		s.Group = nil
	}
	if !s.ShowUserSelector {
		s.User = nil
	}
}

// SelectGroup picks the target group. Groups without students are refused
// and clear the current pick.
func (s *Selection) SelectGroup(g model.Group) error {
	if g.StudentCount == 0 {
		s.Group = nil
		return ErrEmptyGroup
	}
	s.Group = &g
	return nil
}

// SelectUser picks the single target user.
func (s *Selection) SelectUser(u model.User) {
	s.User = &u
}
