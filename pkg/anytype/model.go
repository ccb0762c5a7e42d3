package anytype

import (
	"encoding/json"
)

// Property keys read from and written to Anytype task objects.
const (
	KeyTag            = "tag"
	KeyLinkedProjects = "linked_projects"
	KeyDone           = "done"
	KeyStatus         = "status"
	KeyTrackID        = "toggl_track_id"
	KeyPlanID         = "toggl_plan_id"
	KeyEventID        = "google_event_id"
	KeyStartDate      = "start_date"
	KeyEndDate        = "end_date"
	KeyStartTime      = "start_time"
	KeyEndTime        = "end_time"
	KeyLastModified   = "last_modified_date"
	KeyName           = "name"
)

// Object is an Anytype object as returned by the API.
type Object struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Snippet    string     `json:"snippet,omitempty"`
	Properties []Property `json:"properties,omitempty"`
}

// Property is one typed property of an object. Only the field matching
// the property's format is populated.
type Property struct {
	Key         string            `json:"key"`
	Text        *string           `json:"text,omitempty"`
	Date        *string           `json:"date,omitempty"`
	Checkbox    *bool             `json:"checkbox,omitempty"`
	Select      *Tag              `json:"select,omitempty"`
	MultiSelect []Tag             `json:"multi_select,omitempty"`
	Objects     []json.RawMessage `json:"objects,omitempty"`
}

// Tag is a select option.
type Tag struct {
	Name string `json:"name"`
}

type searchRequest struct {
	Query string   `json:"query"`
	Types []string `json:"types"`
}

type searchResponse struct {
	Data []Object `json:"data"`
}

type objectResponse struct {
	Object Object `json:"object"`
}

func (o *Object) property(key string) *Property {
	for i := range o.Properties {
		if o.Properties[i].Key == key {
			return &o.Properties[i]
		}
	}
	return nil
}

func (o *Object) text(key string) string {
	if p := o.property(key); p != nil && p.Text != nil {
		return *p.Text
	}
	return ""
}

func (o *Object) date(key string) string {
	if p := o.property(key); p != nil && p.Date != nil {
		return *p.Date
	}
	return ""
}

func (o *Object) hasTag(name string) bool {
	p := o.property(KeyTag)
	if p == nil {
		return false
	}
	for _, t := range p.MultiSelect {
		if t.Name == name {
			return true
		}
	}
	return false
}

// linkedObject is one entry of an objects property: either a bare id or
// an embedded object.
type linkedObject struct {
	ID   string
	Name string
}

func parseLinkedObject(raw json.RawMessage) (linkedObject, bool) {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return linkedObject{ID: id}, id != ""
	}
	var obj struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return linkedObject{ID: obj.ID, Name: obj.Name}, obj.ID != "" || obj.Name != ""
	}
	return linkedObject{}, false
}
