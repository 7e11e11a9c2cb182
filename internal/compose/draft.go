package compose

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/scfet/notification-client/internal/api"
	"github.com/scfet/notification-client/internal/model"
)

// MaxImageBytes is the largest image a notification may carry.
const MaxImageBytes = 15 << 20

// ErrNoRecipients is returned when the audience needs a group or user and
// none was picked.
var ErrNoRecipients = errors.New("select recipients")

// Draft is a notification being written.
type Draft struct {
	Title   string `validate:"notblank"`
	Message string `validate:"notblank"`
	Type    model.NotificationType
	Image   *api.Attachment

	Selection Selection `validate:"-"`
}

type imageRules struct {
	Size int `validate:"max=15728640"`
}

// Validate checks the content of the draft, not its recipients.
func (d Draft) Validate() error {
	if err := check(d); err != nil {
		return err
	}
	if d.Image != nil {
		if err := check(imageRules{Size: len(d.Image.Data)}); err != nil {
			return &ValidationError{Problems: []string{imageTooLarge()}}
		}
	}
	return nil
}

func imageTooLarge() string {
	return fmt.Sprintf("image must not exceed %d MB", MaxImageBytes>>20)
}

// Resolve validates the draft and turns it into a request, expanding the
// audience against dir. AudienceAll sends no targets and lets the server
// fan out.
func (d Draft) Resolve(dir *Directory) (api.CreateRequest, error) {
	if err := d.Validate(); err != nil {
		return api.CreateRequest{}, err
	}

	req := api.CreateRequest{
		Title:   strings.TrimSpace(d.Title),
		Message: strings.TrimSpace(d.Message),
		Type:    d.Type,
		Image:   d.Image,
	}
	if req.Type == "" {
		req.Type = model.NotificationInfo
	}

	sel := d.Selection
	switch sel.Audience {
	case AudienceAll:
	case AudienceGroup:
		if sel.Group == nil {
			return api.CreateRequest{}, ErrNoRecipients
		}
		if sel.Group.StudentCount == 0 {
			return api.CreateRequest{}, ErrEmptyGroup
		}
		req.TargetGroupID = sel.Group.ID
	case AudienceSpecific:
		if sel.User == nil {
			return api.CreateRequest{}, ErrNoRecipients
		}
		req.TargetUserIDs = []string{sel.User.UserID}
	case AudienceStudents, AudienceTeachers, AudienceAdministrators:
		if dir == nil {
			return api.CreateRequest{}, fmt.Errorf("audience %s needs the directory loaded", sel.Audience)
		}
		var users []model.User
		switch sel.Audience {
		case AudienceStudents:
			users = dir.Students
		case AudienceTeachers:
			users = dir.Teachers
		default:
			users = dir.Administrators
		}
		// An empty target list means everyone to the server.
		if len(users) == 0 {
			return api.CreateRequest{}, ErrNoRecipients
		}
		req.TargetUserIDs = userIDs(users)
	default:
		return api.CreateRequest{}, ErrNoRecipients
	}
	return req, nil
}

// ReadImage loads an image file as an attachment, refusing files over
// MaxImageBytes.
func ReadImage(path string) (*api.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxImageBytes {
		return nil, &ValidationError{Problems: []string{imageTooLarge()}}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &api.Attachment{
		FileName:    filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}
