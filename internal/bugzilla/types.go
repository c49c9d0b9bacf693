package bugzilla

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/afikmenashe/bugzilla-bridge/internal/timestamp"
)

// Record is the full current view of a bug as republished downstream.
// Every field is always serialized: an absent scalar is a nil pointer and an
// absent list is a nil slice, both rendered as JSON null.
// Attachments are never carried.
type Record struct {
	Alias               []string         `json:"alias"`
	AssignedTo          *string          `json:"assigned_to"`
	Blocks              []int            `json:"blocks"`
	CC                  []string         `json:"cc"`
	Classification      *string          `json:"classification"`
	Comments            []Comment        `json:"comments"`
	Component           *string          `json:"component"`
	Components          []string         `json:"components"`
	CreationTime        *time.Time       `json:"creation_time"`
	Creator             *string          `json:"creator"`
	DependsOn           []int            `json:"depends_on"`
	Description         *string          `json:"description"`
	DocsContact         *string          `json:"docs_contact"`
	EstimatedTime       *float64         `json:"estimated_time"`
	ExternalBugs        []map[string]any `json:"external_bugs"`
	FixedIn             *string          `json:"fixed_in"`
	Flags               []Flag           `json:"flags"`
	Groups              []string         `json:"groups"`
	ID                  *int             `json:"id"`
	IsCCAccessible      *bool            `json:"is_cc_accessible"`
	IsConfirmed         *bool            `json:"is_confirmed"`
	IsCreatorAccessible *bool            `json:"is_creator_accessible"`
	IsOpen              *bool            `json:"is_open"`
	Keywords            []string         `json:"keywords"`
	LastChangeTime      *time.Time       `json:"last_change_time"`
	OpSys               *string          `json:"op_sys"`
	Platform            *string          `json:"platform"`
	Priority            *string          `json:"priority"`
	Product             *string          `json:"product"`
	QAContact           *string          `json:"qa_contact"`
	ActualTime          *float64         `json:"actual_time"`
	RemainingTime       *float64         `json:"remaining_time"`
	Resolution          *string          `json:"resolution"`
	SeeAlso             []string         `json:"see_also"`
	Severity            *string          `json:"severity"`
	Status              *string          `json:"status"`
	Summary             *string          `json:"summary"`
	TargetMilestone     *string          `json:"target_milestone"`
	TargetRelease       []string         `json:"target_release"`
	URL                 *string          `json:"url"`
	Version             *string          `json:"version"`
	Versions            []string         `json:"versions"`
	WebURL              *string          `json:"weburl"`
	Whiteboard          *string          `json:"whiteboard"`
}

// Comment is one entry of a bug's comment list.
type Comment struct {
	ID           int       `json:"id"`
	BugID        int       `json:"bug_id"`
	Count        int       `json:"count"`
	AttachmentID *int      `json:"attachment_id"`
	Creator      string    `json:"creator"`
	Text         string    `json:"text"`
	Time         time.Time `json:"time"`
	IsPrivate    bool      `json:"is_private"`
	Tags         []string  `json:"tags"`
}

// HistoryEvent is one entry of a bug's change log.
type HistoryEvent struct {
	When    time.Time `json:"when"`
	Who     string    `json:"who"`
	Changes []Change  `json:"changes"`
}

// Change is a single field-level change inside a HistoryEvent.
type Change struct {
	FieldName    string `json:"field_name"`
	Removed      string `json:"removed"`
	Added        string `json:"added"`
	AttachmentID *int   `json:"attachment_id,omitempty"`
}

// Flag is a review/approval flag set on a bug.
type Flag struct {
	ID               int        `json:"id"`
	TypeID           int        `json:"type_id"`
	Name             string     `json:"name"`
	Status           string     `json:"status"`
	Setter           string     `json:"setter"`
	Requestee        *string    `json:"requestee"`
	CreationDate     *time.Time `json:"creation_date"`
	ModificationDate *time.Time `json:"modification_date"`
}

// remoteTime decodes tracker timestamps straight into the naive representation.
type remoteTime struct {
	time.Time
}

func (t *remoteTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := timestamp.ParseRemote(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t *remoteTime) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// stringList accepts either a single string or a list of strings.
// Stock Bugzilla and some forks disagree on the shape of component, version and alias.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*l = nil
		} else {
			*l = stringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*l = many
	return nil
}

func (l stringList) first() *string {
	if len(l) == 0 {
		return nil
	}
	v := l[0]
	return &v
}

type bugWire struct {
	Alias               stringList       `json:"alias"`
	AssignedTo          *string          `json:"assigned_to"`
	Blocks              []int            `json:"blocks"`
	CC                  []string         `json:"cc"`
	Classification      *string          `json:"classification"`
	Component           stringList       `json:"component"`
	CreationTime        *remoteTime      `json:"creation_time"`
	Creator             *string          `json:"creator"`
	DependsOn           []int            `json:"depends_on"`
	Description         *string          `json:"description"`
	DocsContact         *string          `json:"docs_contact"`
	EstimatedTime       *float64         `json:"estimated_time"`
	ExternalBugs        []map[string]any `json:"external_bugs"`
	FixedIn             *string          `json:"fixed_in"`
	CFFixedIn           *string          `json:"cf_fixed_in"`
	Flags               []flagWire       `json:"flags"`
	Groups              []string         `json:"groups"`
	ID                  *int             `json:"id"`
	IsCCAccessible      *bool            `json:"is_cc_accessible"`
	IsConfirmed         *bool            `json:"is_confirmed"`
	IsCreatorAccessible *bool            `json:"is_creator_accessible"`
	IsOpen              *bool            `json:"is_open"`
	Keywords            []string         `json:"keywords"`
	LastChangeTime      *remoteTime      `json:"last_change_time"`
	OpSys               *string          `json:"op_sys"`
	Platform            *string          `json:"platform"`
	Priority            *string          `json:"priority"`
	Product             *string          `json:"product"`
	QAContact           *string          `json:"qa_contact"`
	ActualTime          *float64         `json:"actual_time"`
	RemainingTime       *float64         `json:"remaining_time"`
	Resolution          *string          `json:"resolution"`
	SeeAlso             []string         `json:"see_also"`
	Severity            *string          `json:"severity"`
	Status              *string          `json:"status"`
	Summary             *string          `json:"summary"`
	TargetMilestone     *string          `json:"target_milestone"`
	TargetRelease       stringList       `json:"target_release"`
	URL                 *string          `json:"url"`
	Version             stringList       `json:"version"`
	Whiteboard          *string          `json:"whiteboard"`
}

type flagWire struct {
	ID               int         `json:"id"`
	TypeID           int         `json:"type_id"`
	Name             string      `json:"name"`
	Status           string      `json:"status"`
	Setter           string      `json:"setter"`
	Requestee        *string     `json:"requestee"`
	CreationDate     *remoteTime `json:"creation_date"`
	ModificationDate *remoteTime `json:"modification_date"`
}

type commentWire struct {
	ID           int        `json:"id"`
	BugID        int        `json:"bug_id"`
	Count        int        `json:"count"`
	AttachmentID *int       `json:"attachment_id"`
	Creator      string     `json:"creator"`
	Author       string     `json:"author"`
	Text         string     `json:"text"`
	Time         remoteTime `json:"time"`
	CreationTime remoteTime `json:"creation_time"`
	IsPrivate    bool       `json:"is_private"`
	Tags         []string   `json:"tags"`
}

type historyWire struct {
	When    remoteTime `json:"when"`
	Who     string     `json:"who"`
	Changes []Change   `json:"changes"`
}

func (w commentWire) comment() Comment {
	c := Comment{
		ID:           w.ID,
		BugID:        w.BugID,
		Count:        w.Count,
		AttachmentID: w.AttachmentID,
		Creator:      w.Creator,
		Text:         w.Text,
		Time:         w.Time.Time,
		IsPrivate:    w.IsPrivate,
		Tags:         w.Tags,
	}
	if c.Creator == "" {
		c.Creator = w.Author
	}
	if c.Time.IsZero() {
		c.Time = w.CreationTime.Time
	}
	return c
}

func (w historyWire) event() HistoryEvent {
	return HistoryEvent{When: w.When.Time, Who: w.Who, Changes: w.Changes}
}

func (w flagWire) flag() Flag {
	return Flag{
		ID:               w.ID,
		TypeID:           w.TypeID,
		Name:             w.Name,
		Status:           w.Status,
		Setter:           w.Setter,
		Requestee:        w.Requestee,
		CreationDate:     w.CreationDate.ptr(),
		ModificationDate: w.ModificationDate.ptr(),
	}
}

// buildRecord maps the wire representation onto the fixed Record shape.
// baseURL is used to synthesize weburl.
func buildRecord(w *bugWire, comments []Comment, baseURL string) *Record {
	r := &Record{
		Alias:               w.Alias,
		AssignedTo:          w.AssignedTo,
		Blocks:              w.Blocks,
		CC:                  w.CC,
		Classification:      w.Classification,
		Comments:            comments,
		Component:           w.Component.first(),
		Components:          w.Component,
		CreationTime:        w.CreationTime.ptr(),
		Creator:             w.Creator,
		DependsOn:           w.DependsOn,
		Description:         w.Description,
		DocsContact:         w.DocsContact,
		EstimatedTime:       w.EstimatedTime,
		ExternalBugs:        w.ExternalBugs,
		FixedIn:             w.FixedIn,
		Groups:              w.Groups,
		ID:                  w.ID,
		IsCCAccessible:      w.IsCCAccessible,
		IsConfirmed:         w.IsConfirmed,
		IsCreatorAccessible: w.IsCreatorAccessible,
		IsOpen:              w.IsOpen,
		Keywords:            w.Keywords,
		LastChangeTime:      w.LastChangeTime.ptr(),
		OpSys:               w.OpSys,
		Platform:            w.Platform,
		Priority:            w.Priority,
		Product:             w.Product,
		QAContact:           w.QAContact,
		ActualTime:          w.ActualTime,
		RemainingTime:       w.RemainingTime,
		Resolution:          w.Resolution,
		SeeAlso:             w.SeeAlso,
		Severity:            w.Severity,
		Status:              w.Status,
		Summary:             w.Summary,
		TargetMilestone:     w.TargetMilestone,
		TargetRelease:       w.TargetRelease,
		URL:                 w.URL,
		Version:             w.Version.first(),
		Versions:            w.Version,
		Whiteboard:          w.Whiteboard,
	}

	if r.FixedIn == nil {
		r.FixedIn = w.CFFixedIn
	}
	if w.Flags != nil {
		r.Flags = make([]Flag, len(w.Flags))
		for i, f := range w.Flags {
			r.Flags[i] = f.flag()
		}
	}
	// The bug description is the text of comment #0.
	if r.Description == nil {
		for _, c := range comments {
			if c.Count == 0 {
				text := c.Text
				r.Description = &text
				break
			}
		}
	}
	if w.ID != nil && baseURL != "" {
		u := baseURL + "/show_bug.cgi?id=" + strconv.Itoa(*w.ID)
		r.WebURL = &u
	}

	return r
}
