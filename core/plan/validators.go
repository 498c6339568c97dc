package plan

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/soma/core"
)

var (
	nodeKindTag  = "nodekind"
	nodeKindText = "must be one of project, goal, stream, subject, chapter or topic"

	taskStatusTag  = "taskstatus"
	taskStatusText = "must be one of todo, in_progress or done"

	priorityTag  = "priority"
	priorityText = "must be one of low, medium, high or urgent"
)

// InitValidators registers the plan validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	kinds := make([]string, 0, len(Kinds))
	for _, k := range Kinds {
		kinds = append(kinds, string(k))
	}
	_ = validate.RegisterValidation(nodeKindTag, core.OneOfValidation(kinds...))
	core.RegisterCustomTranslation(validate, translator, nodeKindTag, nodeKindText)

	_ = validate.RegisterValidation(taskStatusTag, core.OneOfValidation(
		string(StatusTodo), string(StatusInProgress), string(StatusDone),
	))
	core.RegisterCustomTranslation(validate, translator, taskStatusTag, taskStatusText)

	_ = validate.RegisterValidation(priorityTag, core.OneOfValidation(
		string(PriorityLow), string(PriorityMedium), string(PriorityHigh), string(PriorityUrgent),
	))
	core.RegisterCustomTranslation(validate, translator, priorityTag, priorityText)
}
