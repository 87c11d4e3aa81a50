package pgx

import (
	"fmt"

	"github.com/OFFIS-RIT/diarygraph/internal/util"
	"github.com/OFFIS-RIT/diarygraph/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
)

// recordRow is one row of the records table. People holds participants,
// mentioned people or involved people depending on the kind.
type recordRow struct {
	ID                   string
	Kind                 string
	SegmentID            *string
	Title                string
	Description          string
	Location             string
	EventTime            string
	Name                 string
	Alias                string
	RelationshipToAuthor string
	Emotion              string
	Intensity            string
	People               []string
	Emotions             []string
}

const recordColumns = `r.id, r.kind, r.segment_id, r.title, r.description, r.location, r.event_time,
	r.name, r.alias, r.relationship_to_author, r.emotion, r.intensity, r.people, r.emotions`

// lexicalColumns whitelists the fields a lexical search may read.
var lexicalColumns = map[string]string{
	"title":       "r.title",
	"description": "r.description",
	"location":    "r.location",
	"name":        "r.name",
	"alias":       "r.alias",
}

func scanRecord(row pgxv5.Row, extra ...any) (common.Record, error) {
	var r recordRow
	dest := []any{
		&r.ID, &r.Kind, &r.SegmentID, &r.Title, &r.Description, &r.Location, &r.EventTime,
		&r.Name, &r.Alias, &r.RelationshipToAuthor, &r.Emotion, &r.Intensity, &r.People, &r.Emotions,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return r.toRecord()
}

func (r recordRow) toRecord() (common.Record, error) {
	switch common.Kind(r.Kind) {
	case common.KindEvent:
		return &common.Event{ID: r.ID, Title: r.Title, Description: r.Description, Location: r.Location, Time: r.EventTime, Participants: r.People}, nil
	case common.KindPerson:
		return &common.Person{ID: r.ID, Name: r.Name, Alias: r.Alias, Description: r.Description, RelationshipToAuthor: r.RelationshipToAuthor}, nil
	case common.KindThought:
		return &common.Thought{ID: r.ID, Title: r.Title, Description: r.Description, PeopleMentioned: r.People, Emotion: r.Emotion}, nil
	case common.KindEmotion:
		return &common.Emotion{ID: r.ID, Title: r.Title, Description: r.Description, Intensity: common.Intensity(r.Intensity)}, nil
	case common.KindProblem:
		return &common.Problem{ID: r.ID, Title: r.Title, Description: r.Description, People: r.People, Emotions: r.Emotions}, nil
	case common.KindAchievement:
		return &common.Achievement{ID: r.ID, Title: r.Title, Description: r.Description, People: r.People, Emotions: r.Emotions}, nil
	case common.KindIntention:
		return &common.Intention{ID: r.ID, Title: r.Title, Description: r.Description, People: r.People}, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", r.Kind)
}

func rowFromRecord(rec common.Record) recordRow {
	r := recordRow{
		ID:          rec.GetID(),
		Kind:        string(rec.GetKind()),
		Title:       rec.GetTitle(),
		Description: rec.GetDescription(),
		People:      []string{},
		Emotions:    []string{},
	}
	switch v := rec.(type) {
	case *common.Event:
		r.Location = v.Location
		r.EventTime = v.Time
		r.People = orEmpty(v.Participants)
	case *common.Person:
		r.Name = v.Name
		r.Alias = v.Alias
		r.RelationshipToAuthor = v.RelationshipToAuthor
	case *common.Thought:
		r.People = orEmpty(v.PeopleMentioned)
		r.Emotion = v.Emotion
	case *common.Emotion:
		r.Intensity = string(v.Intensity)
	case *common.Problem:
		r.People = orEmpty(v.People)
		r.Emotions = orEmpty(v.Emotions)
	case *common.Achievement:
		r.People = orEmpty(v.People)
		r.Emotions = orEmpty(v.Emotions)
	case *common.Intention:
		r.People = orEmpty(v.People)
	}
	return r.sanitized()
}

// sanitized strips bytes postgres rejects in text columns.
func (r recordRow) sanitized() recordRow {
	r.Title = util.SanitizePostgresText(r.Title)
	r.Description = util.SanitizePostgresText(r.Description)
	r.Location = util.SanitizePostgresText(r.Location)
	r.EventTime = util.SanitizePostgresText(r.EventTime)
	r.Name = util.SanitizePostgresText(r.Name)
	r.Alias = util.SanitizePostgresText(r.Alias)
	r.RelationshipToAuthor = util.SanitizePostgresText(r.RelationshipToAuthor)
	r.Emotion = util.SanitizePostgresText(r.Emotion)
	r.People = util.SanitizePostgresTexts(r.People)
	r.Emotions = util.SanitizePostgresTexts(r.Emotions)
	return r
}

func orEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
