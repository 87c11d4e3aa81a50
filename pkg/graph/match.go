package graph

import (
	"strings"

	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/similarity"
)

// IsMatch decides whether local and global describe the same thing. Rules are
// checked in order and the first one that holds wins:
//
//  1. titles equal ignoring case, or title ratio >= 0.95
//  2. people: name ratio >= 0.8, or one side's name inside the other's alias
//  3. description ratio >= 0.7
//  4. events: location and time ratio both >= 0.8
//  5. (2*title ratio + description ratio) averaged over present fields >= 0.8
//
// Records of different kinds never match.
func IsMatch(local, global common.Record) bool {
	if local == nil || global == nil || local.GetKind() != global.GetKind() {
		return false
	}

	lt, gt := local.GetTitle(), global.GetTitle()
	if lt != "" && gt != "" {
		if strings.EqualFold(lt, gt) || similarity.Ratio(lt, gt) >= similarity.ExactThreshold {
			return true
		}
	}

	if lp, ok := local.(*common.Person); ok {
		gp := global.(*common.Person)
		if lp.Name != "" && gp.Name != "" && similarity.Ratio(lp.Name, gp.Name) >= similarity.FuzzyThreshold {
			return true
		}
		if similarity.ContainsFold(gp.Alias, lp.Name) || similarity.ContainsFold(lp.Alias, gp.Name) {
			return true
		}
	}

	ld, gd := local.GetDescription(), global.GetDescription()
	if ld != "" && gd != "" && similarity.Ratio(ld, gd) >= similarity.SemanticThreshold {
		return true
	}

	if le, ok := local.(*common.Event); ok {
		ge := global.(*common.Event)
		locationMatch := le.Location != "" && ge.Location != "" &&
			similarity.Ratio(le.Location, ge.Location) >= similarity.FuzzyThreshold
		timeMatch := le.Time != "" && ge.Time != "" &&
			similarity.Ratio(le.Time, ge.Time) >= similarity.FuzzyThreshold
		if locationMatch && timeMatch {
			return true
		}
	}

	total, weight := 0.0, 0.0
	if lt != "" && gt != "" {
		total += similarity.Ratio(lt, gt) * 2
		weight += 2
	}
	if ld != "" && gd != "" {
		total += similarity.Ratio(ld, gd)
		weight++
	}
	return weight > 0 && total/weight >= similarity.FuzzyThreshold
}
