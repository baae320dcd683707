package normalize

import (
	"strings"

	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

// detector recognizes one producer schema. Detectors are evaluated in order
// and the first match wins.
type detector struct {
	format   types.ProducerFormat
	action   string
	required []string
	match    func(doc object) bool
	convert  func(n *Normalizer, doc object, res *Result) error
}

var detectors = []detector{
	{
		format:   types.FormatTaskDeployment,
		action:   "task_deployment",
		required: []string{"deploymentInfo", "assignedTasks", "deploymentSummary"},
		convert:  convertTaskDeployment,
	},
	{
		format:   types.FormatUserDataSync,
		action:   "user_data_sync",
		required: []string{"syncInfo", "users", "syncSummary"},
		convert:  convertUserDataSync,
	},
	{
		format:   types.FormatRoleSelection,
		action:   "role_selection",
		required: []string{"user", "selectedRole"},
		convert:  convertRoleSelection,
	},
	{
		format:  types.FormatLegacy,
		match:   matchLegacy,
		convert: convertLegacy,
	},
}

func (d detector) matches(doc object) bool {
	if d.match != nil {
		return d.match(doc)
	}
	if strings.ToLower(doc.str("action")) != d.action {
		return false
	}
	_, missing := doc.missing(d.required...)
	return !missing
}

func detect(doc object) (detector, bool) {
	for _, d := range detectors {
		if d.matches(doc) {
			return d, true
		}
	}
	return detector{}, false
}

// knownActions are the action values owned by the typed detectors
var knownActions = map[string]bool{
	"task_deployment": true,
	"user_data_sync":  true,
	"role_selection":  true,
}

// matchLegacy accepts a non-empty tasks array when no known action is set
func matchLegacy(doc object) bool {
	if knownActions[strings.ToLower(doc.str("action"))] {
		return false
	}
	tasks, ok := doc.arr("tasks")
	return ok && len(tasks) > 0
}
