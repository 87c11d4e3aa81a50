package common

// SearchConfig names the collection and the fields used to look up records of
// one kind in the global record set.
type SearchConfig struct {
	Collection string
	// LexicalFields are searched with the value of LexicalQueryField.
	LexicalFields     []string
	LexicalQueryField string
	// VectorFields each carry their own embedding; the local record's value of
	// the same field is the query text.
	VectorFields []string
}

var searchConfigs = map[Kind]SearchConfig{
	KindEvent: {
		Collection:        "events",
		LexicalFields:     []string{"title"},
		LexicalQueryField: "title",
		VectorFields:      []string{"title", "description"},
	},
	KindPerson: {
		Collection:        "people",
		LexicalFields:     []string{"name", "alias"},
		LexicalQueryField: "name",
		VectorFields:      []string{"name", "description"},
	},
	KindThought: {
		Collection:        "thoughts",
		LexicalFields:     []string{"title"},
		LexicalQueryField: "title",
		VectorFields:      []string{"description", "title"},
	},
	KindEmotion: {
		Collection:        "emotions",
		LexicalFields:     []string{"title"},
		LexicalQueryField: "title",
		VectorFields:      []string{"description", "title"},
	},
	KindProblem: {
		Collection:        "problems",
		LexicalFields:     []string{"title"},
		LexicalQueryField: "title",
		VectorFields:      []string{"description", "title"},
	},
	KindAchievement: {
		Collection:        "achievements",
		LexicalFields:     []string{"title"},
		LexicalQueryField: "title",
		VectorFields:      []string{"description", "title"},
	},
	KindIntention: {
		Collection:        "intentions",
		LexicalFields:     []string{"title"},
		LexicalQueryField: "title",
		VectorFields:      []string{"description", "title"},
	},
}

// SearchConfigFor returns the search configuration of kind.
func SearchConfigFor(kind Kind) (SearchConfig, bool) {
	cfg, ok := searchConfigs[kind]
	return cfg, ok
}

// KindForCollection maps a collection name back to its record kind.
func KindForCollection(collection string) (Kind, bool) {
	for kind, cfg := range searchConfigs {
		if cfg.Collection == collection {
			return kind, true
		}
	}
	return "", false
}
