package graph

import (
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/diarygraph/pkg/common"
)

func TestMergeEvent(t *testing.T) {
	local := &common.Event{ID: "E1", Title: "Park", Description: "Went to park", Location: "", Time: "Monday", Participants: []string{"Anna"}}
	global := &common.Event{ID: "G1", Title: "Park visit", Description: "Saw friends", Location: "Berlin"}

	got := Merge(local, global).(*common.Event)
	want := &common.Event{
		ID:           "G1",
		Title:        "Park visit",
		Description:  "Went to park \n Saw friends",
		Location:     "Berlin",
		Time:         "Monday",
		Participants: []string{"Anna"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if global.Description != "Saw friends" {
		t.Fatalf("expected global to stay untouched, got %q", global.Description)
	}
}

func TestMergeEventLocationAndTime(t *testing.T) {
	local := &common.Event{ID: "E1", Location: "Mitte", Time: "Friday", Participants: []string{"Ben"}}
	global := &common.Event{ID: "G1", Location: "Berlin", Time: "Monday", Participants: []string{"Anna"}}

	got := Merge(local, global).(*common.Event)
	if got.Location != "Berlin / Mitte" {
		t.Fatalf("expected location %q, got %q", "Berlin / Mitte", got.Location)
	}
	if got.Time != "Monday" {
		t.Fatalf("expected global time, got %q", got.Time)
	}
	if !reflect.DeepEqual(got.Participants, []string{"Anna"}) {
		t.Fatalf("expected global participants, got %v", got.Participants)
	}
}

func TestMergePerson(t *testing.T) {
	tests := []struct {
		name   string
		local  *common.Person
		global *common.Person
		want   *common.Person
	}{
		{
			name:   "local values accumulate",
			local:  &common.Person{ID: "P1", Name: "Anna S.", Alias: "Annie", Description: "met at work", RelationshipToAuthor: "colleague"},
			global: &common.Person{ID: "G1", Name: "Anna", Alias: "Schmidt", Description: "a friend", RelationshipToAuthor: "friend"},
			want:   &common.Person{ID: "G1", Name: "Anna", Alias: "Annie / Schmidt", Description: "met at work \n a friend", RelationshipToAuthor: "colleague / friend"},
		},
		{
			name:   "empty local keeps global",
			local:  &common.Person{ID: "P1", Name: "Anna"},
			global: &common.Person{ID: "G1", Name: "Anna", Alias: "Annie", Description: "a friend", RelationshipToAuthor: "friend"},
			want:   &common.Person{ID: "G1", Name: "Anna", Alias: "Annie", Description: "a friend", RelationshipToAuthor: "friend"},
		},
		{
			name:   "name stays global",
			local:  &common.Person{ID: "P1", Name: "Anna", Alias: "Annie"},
			global: &common.Person{ID: "G1", Alias: "Annie"},
			want:   &common.Person{ID: "G1", Alias: "Annie / Annie"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.local, tt.global)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestMergeListsPreferGlobal(t *testing.T) {
	thought := Merge(
		&common.Thought{ID: "T1", Title: "Spring", Description: "nice", PeopleMentioned: []string{"Ben"}, Emotion: "joy"},
		&common.Thought{ID: "G1", Title: "Springtime", Emotion: ""},
	).(*common.Thought)
	if thought.Title != "Springtime" || thought.Description != "nice" {
		t.Fatalf("unexpected thought %+v", thought)
	}
	if !reflect.DeepEqual(thought.PeopleMentioned, []string{"Ben"}) || thought.Emotion != "joy" {
		t.Fatalf("expected local fallbacks, got %+v", thought)
	}

	problem := Merge(
		&common.Problem{ID: "X1", People: []string{"Ben"}, Emotions: []string{"anger"}},
		&common.Problem{ID: "G2", People: []string{"Anna"}},
	).(*common.Problem)
	if !reflect.DeepEqual(problem.People, []string{"Anna"}) || !reflect.DeepEqual(problem.Emotions, []string{"anger"}) {
		t.Fatalf("unexpected problem lists %+v", problem)
	}

	achievement := Merge(
		&common.Achievement{ID: "A1", Emotions: []string{"pride"}},
		&common.Achievement{ID: "G3", Emotions: []string{"joy"}},
	).(*common.Achievement)
	if !reflect.DeepEqual(achievement.Emotions, []string{"joy"}) {
		t.Fatalf("expected global emotions, got %v", achievement.Emotions)
	}

	intention := Merge(
		&common.Intention{ID: "I1", Description: "call", People: []string{"Mom"}},
		&common.Intention{ID: "G4", Description: "visit"},
	).(*common.Intention)
	if intention.ID != "G4" || intention.Description != "call \n visit" || !reflect.DeepEqual(intention.People, []string{"Mom"}) {
		t.Fatalf("unexpected intention %+v", intention)
	}
}

func TestMergeEmotion(t *testing.T) {
	got := Merge(
		&common.Emotion{ID: "M1", Title: "joy", Description: "sun", Intensity: common.IntensityStrong},
		&common.Emotion{ID: "G1", Title: "joy"},
	).(*common.Emotion)
	if got.ID != "G1" || got.Description != "sun" || got.Intensity != common.IntensityStrong {
		t.Fatalf("unexpected emotion %+v", got)
	}
}

func TestMergeKindMismatchReturnsGlobal(t *testing.T) {
	global := &common.Thought{ID: "G1", Title: "Birthday"}
	got := Merge(&common.Event{ID: "E1", Title: "Birthday", Description: "cake"}, global)
	if got != common.Record(global) {
		t.Fatalf("expected global returned unchanged, got %+v", got)
	}
}
