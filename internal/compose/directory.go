package compose

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/scfet/notification-client/internal/model"
)

// DirectoryAPI lists the people and groups a notification can target.
type DirectoryAPI interface {
	Groups(ctx context.Context, f model.GroupFilter) ([]model.Group, error)
	Students(ctx context.Context, f model.UserFilter) ([]model.User, error)
	Teachers(ctx context.Context, f model.UserFilter) ([]model.User, error)
	Administrators(ctx context.Context, f model.UserFilter) ([]model.User, error)
}

// Directory is a loaded snapshot of possible recipients.
type Directory struct {
	Groups         []model.Group
	Students       []model.User
	Teachers       []model.User
	Administrators []model.User

	selfEmail string
}

// Filters narrows the directory listing.
type Filters struct {
	Users  model.UserFilter
	Groups model.GroupFilter
}

// Validate checks every free-text filter against MaxFilterLength.
func (f Filters) Validate() error {
	return check(f)
}

// LoadDirectory fetches groups, students and teachers concurrently, plus
// administrators when me is one. The first failure cancels the rest.
func LoadDirectory(ctx context.Context, api DirectoryAPI, me model.User, f Filters) (*Directory, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	d := &Directory{selfEmail: me.Email}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Groups, err = api.Groups(ctx, f.Groups)
		return err
	})
	g.Go(func() (err error) {
		d.Students, err = api.Students(ctx, f.Users)
		return err
	})
	g.Go(func() (err error) {
		d.Teachers, err = api.Teachers(ctx, f.Users)
		return err
	})
	if me.Role == model.RoleAdministrator {
		g.Go(func() (err error) {
			d.Administrators, err = api.Administrators(ctx, f.Users)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

// Users merges every listed user, distinct by id, leaving out the
// signed-in user.
func (d *Directory) Users() []model.User {
	all := slices.Concat(d.Students, d.Teachers, d.Administrators)
	seen := make(map[string]struct{}, len(all))
	out := make([]model.User, 0, len(all))
	for _, u := range all {
		if d.selfEmail != "" && u.Email == d.selfEmail {
			continue
		}
		if _, ok := seen[u.UserID]; ok {
			continue
		}
		seen[u.UserID] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Group finds a group by id.
func (d *Directory) Group(id string) (model.Group, bool) {
	i := slices.IndexFunc(d.Groups, func(g model.Group) bool { return g.ID == id })
	if i < 0 {
		return model.Group{}, false
	}
	return d.Groups[i], true
}

// User finds a user by id among Users.
func (d *Directory) User(id string) (model.User, bool) {
	users := d.Users()
	i := slices.IndexFunc(users, func(u model.User) bool { return u.UserID == id })
	if i < 0 {
		return model.User{}, false
	}
	return users[i], true
}

func userIDs(users []model.User) []string {
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.UserID
	}
	return ids
}
