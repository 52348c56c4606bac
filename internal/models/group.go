package models

// Group набор задач, из которого строится один лист отчета.
type Group struct {
	Name   string
	Label  string
	Sprint string
	Member string
	Tasks  []Task
}

// MemberStats представляет статистику по участнику команды.
type MemberStats struct {
	Member     string  `json:"member" yaml:"member"`
	Tasks      int     `json:"tasks" yaml:"tasks"`
	Todo       int     `json:"todo" yaml:"todo"`
	InProgress int     `json:"in_progress" yaml:"in_progress"`
	Done       int     `json:"done" yaml:"done"`
	TotalHours float64 `json:"total_hours" yaml:"total_hours"`
}
