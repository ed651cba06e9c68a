package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/projdeck/internal/storage"
)

// ErrUnknownField is returned by SetField for names that are not settable text fields.
var ErrUnknownField = errors.New("unknown project field")

// Field names a mutable project field.
type Field string

const (
	FieldName            Field = "name"
	FieldDescription     Field = "description"
	FieldStatus          Field = "status"
	FieldFolderPath      Field = "folder_path"
	FieldLanguage        Field = "language"
	FieldLastInteraction Field = "last_interaction"
)

// TextFields lists the fields SetField accepts, in display order.
var TextFields = []Field{FieldName, FieldDescription, FieldStatus, FieldFolderPath, FieldLanguage}

// ChangeFunc is called after a field of p changed. Its error is returned by the setter.
type ChangeFunc func(p *Project, f Field) error

const lastInteractionLayout = "02.01.2006 15:04:05 -07:00"

// Project is a catalog entry tracked by a ViewModel. Setters notify the single
// subscriber when, and only when, the value actually changes.
type Project struct {
	rec      storage.Project
	onChange ChangeFunc
}

// NewProject wraps a copy of rec. The result has no subscriber.
func NewProject(rec storage.Project) *Project {
	return &Project{rec: rec.Clone()}
}

func (p *Project) ID() int64           { return p.rec.ID }
func (p *Project) Name() string        { return p.rec.Name }
func (p *Project) Description() string { return p.rec.Description }
func (p *Project) Status() string      { return p.rec.Status }
func (p *Project) FolderPath() string  { return p.rec.FolderPath }
func (p *Project) Language() string    { return p.rec.Language }

// LastInteraction returns the zero time and false when the project was never launched.
func (p *Project) LastInteraction() (time.Time, bool) {
	if p.rec.LastInteraction == nil {
		return time.Time{}, false
	}
	return *p.rec.LastInteraction, true
}

// LastInteractionDisplay formats LastInteraction in local time, or "—" when unset.
func (p *Project) LastInteractionDisplay() string {
	t, ok := p.LastInteraction()
	if !ok {
		return "—"
	}
	return t.Local().Format(lastInteractionLayout)
}

// Record returns a copy of the persisted field set.
func (p *Project) Record() storage.Project {
	return p.rec.Clone()
}

// Subscribe replaces the change subscriber.
func (p *Project) Subscribe(fn ChangeFunc) { p.onChange = fn }

// Unsubscribe drops the change subscriber.
func (p *Project) Unsubscribe() { p.onChange = nil }

// setID is used only when the store assigns identity.
func (p *Project) setID(id int64) { p.rec.ID = id }

func (p *Project) notify(f Field) error {
	if p.onChange == nil {
		return nil
	}
	return p.onChange(p, f)
}

func (p *Project) setText(dst *string, v string, f Field) error {
	if *dst == v {
		return nil
	}
	*dst = v
	return p.notify(f)
}

func (p *Project) SetName(v string) error        { return p.setText(&p.rec.Name, v, FieldName) }
func (p *Project) SetDescription(v string) error { return p.setText(&p.rec.Description, v, FieldDescription) }
func (p *Project) SetStatus(v string) error      { return p.setText(&p.rec.Status, v, FieldStatus) }
func (p *Project) SetFolderPath(v string) error  { return p.setText(&p.rec.FolderPath, v, FieldFolderPath) }
func (p *Project) SetLanguage(v string) error    { return p.setText(&p.rec.Language, v, FieldLanguage) }

// SetLastInteraction replaces the timestamp; it never accumulates history.
func (p *Project) SetLastInteraction(t time.Time) error {
	if cur := p.rec.LastInteraction; cur != nil && cur.Equal(t) {
		return nil
	}
	p.rec.LastInteraction = &t
	return p.notify(FieldLastInteraction)
}

// SetField sets one of TextFields by name.
func (p *Project) SetField(f Field, v string) error {
	switch f {
	case FieldName:
		return p.SetName(v)
	case FieldDescription:
		return p.SetDescription(v)
	case FieldStatus:
		return p.SetStatus(v)
	case FieldFolderPath:
		return p.SetFolderPath(v)
	case FieldLanguage:
		return p.SetLanguage(v)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, string(f))
	}
}

// ParseField returns the text field called name.
func ParseField(name string) (Field, error) {
	for _, f := range TextFields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}
