package types

// WorkPlan is a free-form planning document attached to a session.
type WorkPlan struct {
	Version string       `json:"version"`
	Title   string       `json:"title,omitempty"`
	Goals   []PlanGoal   `json:"goals"`
	Context string       `json:"context,omitempty"`
	Todos   []PlanTodo   `json:"todos"`
	Options []PlanOption `json:"options"`
	Notes   string       `json:"notes,omitempty"`
}

type PlanGoal struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Priority  string `json:"priority,omitempty"`
	Completed bool   `json:"completed"`
}

type PlanTodo struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	Completed      bool   `json:"completed"`
	AssignedGoalID string `json:"assignedGoalId,omitempty"`
}

type PlanOption struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Pros        []string `json:"pros"`
	Cons        []string `json:"cons"`
}
