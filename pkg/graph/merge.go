package graph

import (
	"strings"

	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/logger"
)

const (
	descriptionSeparator = " \n "
	valueSeparator       = " / "
)

// Merge folds local into global and returns the combined record under the
// global identifier. Neither input is modified.
//
// Descriptions are joined local first. Aliases, relationship to the author and
// event locations accumulate, everything else keeps the global value and only
// falls back to the local one when the global record has none. A kind
// mismatch is a caller bug: it is logged and global is returned unchanged.
func Merge(local, global common.Record) common.Record {
	if local == nil || global == nil {
		return global
	}
	if local.GetKind() != global.GetKind() {
		logger.Error("[Graph][Merge] Kind mismatch", "local_id", local.GetID(), "local_kind", local.GetKind(), "global_id", global.GetID(), "global_kind", global.GetKind())
		return global
	}

	switch g := common.Clone(global).(type) {
	case *common.Event:
		l := local.(*common.Event)
		g.Description = joinDescriptions(l.Description, g.Description)
		if l.Location != "" {
			g.Location = joinValues(g.Location, l.Location)
		}
		g.Time = orString(g.Time, l.Time)
		g.Participants = orList(g.Participants, l.Participants)
		return g
	case *common.Person:
		l := local.(*common.Person)
		if l.Alias != "" {
			g.Alias = joinValues(l.Alias, g.Alias)
		}
		g.Description = joinDescriptions(l.Description, g.Description)
		if l.RelationshipToAuthor != "" {
			g.RelationshipToAuthor = joinValues(l.RelationshipToAuthor, g.RelationshipToAuthor)
		}
		return g
	case *common.Thought:
		l := local.(*common.Thought)
		g.Description = joinDescriptions(l.Description, g.Description)
		g.PeopleMentioned = orList(g.PeopleMentioned, l.PeopleMentioned)
		g.Emotion = orString(g.Emotion, l.Emotion)
		return g
	case *common.Emotion:
		l := local.(*common.Emotion)
		g.Description = joinDescriptions(l.Description, g.Description)
		if g.Intensity == "" {
			g.Intensity = l.Intensity
		}
		return g
	case *common.Problem:
		l := local.(*common.Problem)
		g.Description = joinDescriptions(l.Description, g.Description)
		g.People = orList(g.People, l.People)
		g.Emotions = orList(g.Emotions, l.Emotions)
		return g
	case *common.Achievement:
		l := local.(*common.Achievement)
		g.Description = joinDescriptions(l.Description, g.Description)
		g.People = orList(g.People, l.People)
		g.Emotions = orList(g.Emotions, l.Emotions)
		return g
	case *common.Intention:
		l := local.(*common.Intention)
		g.Description = joinDescriptions(l.Description, g.Description)
		g.People = orList(g.People, l.People)
		return g
	}
	return global
}

func joinDescriptions(local, global string) string {
	local, global = strings.TrimSpace(local), strings.TrimSpace(global)
	switch {
	case local == "":
		return global
	case global == "":
		return local
	}
	return local + descriptionSeparator + global
}

// joinValues joins first and second with " / ", dropping empty sides.
func joinValues(first, second string) string {
	switch {
	case first == "":
		return second
	case second == "":
		return first
	}
	return first + valueSeparator + second
}

func orString(global, local string) string {
	if global != "" {
		return global
	}
	return local
}

func orList(global, local []string) []string {
	if len(global) > 0 {
		return append([]string(nil), global...)
	}
	return append([]string(nil), local...)
}
