package common

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Kind identifies the variant of a Record.
type Kind string

const (
	KindEvent       Kind = "event"
	KindPerson      Kind = "person"
	KindThought     Kind = "thought"
	KindEmotion     Kind = "emotion"
	KindProblem     Kind = "problem"
	KindAchievement Kind = "achievement"
	KindIntention   Kind = "intention"
)

// Kinds lists every record kind in segment category order.
var Kinds = []Kind{
	KindEvent,
	KindPerson,
	KindThought,
	KindEmotion,
	KindProblem,
	KindAchievement,
	KindIntention,
}

// Record is a single typed item extracted from a diary segment.
//
// Record is a closed sum type: it is implemented only by *Event, *Person,
// *Thought, *Emotion, *Problem, *Achievement and *Intention. Code that needs
// per-type behaviour uses a type switch listing all variants.
type Record interface {
	GetID() string
	SetID(id string)
	GetKind() Kind
	// GetTitle returns the short title of the record. People have no title
	// and return an empty string.
	GetTitle() string
	GetDescription() string

	isRecord()
}

// Intensity is the strength of an Emotion.
type Intensity string

const (
	IntensityStrong Intensity = "strong"
	IntensityNormal Intensity = "normal"
	IntensityWeak   Intensity = "weak"
)

// Valid reports whether i is empty or one of the known intensities.
func (i Intensity) Valid() bool {
	switch i {
	case "", IntensityStrong, IntensityNormal, IntensityWeak:
		return true
	}
	return false
}

// Event is something that happened, with where, when and who took part.
type Event struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Location     string   `json:"location"`
	Time         string   `json:"time"`
	Participants []string `json:"participants"`
}

// Person is what a segment tells about one person.
type Person struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Alias                string `json:"alias"`
	Description          string `json:"description"`
	RelationshipToAuthor string `json:"relationship_to_author"`
}

// Thought is a thought or reflection of the author.
type Thought struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	PeopleMentioned []string `json:"people_mentioned"`
	Emotion         string   `json:"emotion"`
}

// Emotion is a feeling expressed in a segment. Emotions are never merged into
// the global record set.
type Emotion struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Intensity   Intensity `json:"intensity,omitempty"`
}

// Problem is a problem or concern of the author.
type Problem struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	People      []string `json:"people"`
	Emotions    []string `json:"emotions"`
}

// Achievement is something the author accomplished.
type Achievement struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	People      []string `json:"people"`
	Emotions    []string `json:"emotions"`
}

// Intention is a plan or goal for the future.
type Intention struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	People      []string `json:"people"`
}

func (r *Event) GetID() string       { return r.ID }
func (r *Person) GetID() string      { return r.ID }
func (r *Thought) GetID() string     { return r.ID }
func (r *Emotion) GetID() string     { return r.ID }
func (r *Problem) GetID() string     { return r.ID }
func (r *Achievement) GetID() string { return r.ID }
func (r *Intention) GetID() string   { return r.ID }

func (r *Event) SetID(id string)       { r.ID = id }
func (r *Person) SetID(id string)      { r.ID = id }
func (r *Thought) SetID(id string)     { r.ID = id }
func (r *Emotion) SetID(id string)     { r.ID = id }
func (r *Problem) SetID(id string)     { r.ID = id }
func (r *Achievement) SetID(id string) { r.ID = id }
func (r *Intention) SetID(id string)   { r.ID = id }

func (*Event) GetKind() Kind       { return KindEvent }
func (*Person) GetKind() Kind      { return KindPerson }
func (*Thought) GetKind() Kind     { return KindThought }
func (*Emotion) GetKind() Kind     { return KindEmotion }
func (*Problem) GetKind() Kind     { return KindProblem }
func (*Achievement) GetKind() Kind { return KindAchievement }
func (*Intention) GetKind() Kind   { return KindIntention }

func (r *Event) GetTitle() string       { return r.Title }
func (*Person) GetTitle() string        { return "" }
func (r *Thought) GetTitle() string     { return r.Title }
func (r *Emotion) GetTitle() string     { return r.Title }
func (r *Problem) GetTitle() string     { return r.Title }
func (r *Achievement) GetTitle() string { return r.Title }
func (r *Intention) GetTitle() string   { return r.Title }

func (r *Event) GetDescription() string       { return r.Description }
func (r *Person) GetDescription() string      { return r.Description }
func (r *Thought) GetDescription() string     { return r.Description }
func (r *Emotion) GetDescription() string     { return r.Description }
func (r *Problem) GetDescription() string     { return r.Description }
func (r *Achievement) GetDescription() string { return r.Description }
func (r *Intention) GetDescription() string   { return r.Description }

func (*Event) isRecord()       {}
func (*Person) isRecord()      {}
func (*Thought) isRecord()     {}
func (*Emotion) isRecord()     {}
func (*Problem) isRecord()     {}
func (*Achievement) isRecord() {}
func (*Intention) isRecord()   {}

// NewRecord returns an empty record of the given kind, or nil for an unknown kind.
func NewRecord(kind Kind) Record {
	switch kind {
	case KindEvent:
		return &Event{}
	case KindPerson:
		return &Person{}
	case KindThought:
		return &Thought{}
	case KindEmotion:
		return &Emotion{}
	case KindProblem:
		return &Problem{}
	case KindAchievement:
		return &Achievement{}
	case KindIntention:
		return &Intention{}
	}
	return nil
}

// Clone returns a deep copy of rec.
func Clone(rec Record) Record {
	switch r := rec.(type) {
	case *Event:
		c := *r
		c.Participants = cloneStrings(r.Participants)
		return &c
	case *Person:
		c := *r
		return &c
	case *Thought:
		c := *r
		c.PeopleMentioned = cloneStrings(r.PeopleMentioned)
		return &c
	case *Emotion:
		c := *r
		return &c
	case *Problem:
		c := *r
		c.People = cloneStrings(r.People)
		c.Emotions = cloneStrings(r.Emotions)
		return &c
	case *Achievement:
		c := *r
		c.People = cloneStrings(r.People)
		c.Emotions = cloneStrings(r.Emotions)
		return &c
	case *Intention:
		c := *r
		c.People = cloneStrings(r.People)
		return &c
	}
	return nil
}

// FieldValue returns the text value of a named field of rec. Unknown fields
// yield an empty string.
func FieldValue(rec Record, field string) string {
	switch field {
	case "title":
		return rec.GetTitle()
	case "description":
		return rec.GetDescription()
	}

	switch r := rec.(type) {
	case *Event:
		switch field {
		case "location":
			return r.Location
		case "time":
			return r.Time
		}
	case *Person:
		switch field {
		case "name":
			return r.Name
		case "alias":
			return r.Alias
		case "relationship_to_author":
			return r.RelationshipToAuthor
		}
	case *Thought:
		if field == "emotion" {
			return r.Emotion
		}
	case *Emotion:
		if field == "intensity" {
			return string(r.Intensity)
		}
	}
	return ""
}

// NewID returns a new random identifier for records and segments.
func NewID() (string, error) {
	return gonanoid.New()
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
