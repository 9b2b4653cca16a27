package recommend

import (
	"github.com/crestpointmarketing/eventra-app-sub000/internal/leads"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/templates"
)

type stageRule struct {
	categories map[templates.Category]bool
	goals      map[templates.Goal]bool
}

func rule(categories []templates.Category, goals []templates.Goal) stageRule {
	r := stageRule{
		categories: make(map[templates.Category]bool, len(categories)),
		goals:      make(map[templates.Goal]bool, len(goals)),
	}
	for _, c := range categories {
		r.categories[c] = true
	}
	for _, g := range goals {
		r.goals[g] = true
	}
	return r
}

var (
	allCategories = []templates.Category{templates.CategoryWarmUp, templates.CategoryFollowUp, templates.CategoryProductInfo}

	// stageMatrix lists what each stage can structurally receive. Anything
	// outside it is filtered before scoring.
	stageMatrix = map[leads.Stage]stageRule{
		leads.StageNew: rule(allCategories,
			[]templates.Goal{templates.GoalBookMeeting, templates.GoalShareInfo, templates.GoalQualify}),
		leads.StageEngaged: rule(allCategories,
			[]templates.Goal{templates.GoalBookMeeting, templates.GoalShareInfo, templates.GoalQualify, templates.GoalReengage}),
		leads.StageQualified: rule(
			[]templates.Category{templates.CategoryFollowUp, templates.CategoryProductInfo},
			[]templates.Goal{templates.GoalBookMeeting, templates.GoalShareInfo, templates.GoalQualify}),
		leads.StageNegotiation: rule(
			[]templates.Category{templates.CategoryFollowUp},
			[]templates.Goal{templates.GoalBookMeeting, templates.GoalShareInfo}),
		leads.StageCustomer: rule(
			[]templates.Category{templates.CategoryFollowUp, templates.CategoryProductInfo},
			[]templates.Goal{templates.GoalShareInfo, templates.GoalReengage}),
		leads.StageLost: rule(
			[]templates.Category{templates.CategoryFollowUp, templates.CategoryWarmUp},
			[]templates.Goal{templates.GoalReengage}),
	}
)

// Eligible reports whether a template's category and goal fit the stage.
// Unknown stages are treated as new.
func Eligible(stage leads.Stage, t *templates.Template) bool {
	r, ok := stageMatrix[stage]
	if !ok {
		r = stageMatrix[leads.StageNew]
	}
	return r.categories[t.Category] && r.goals[t.Goal]
}
