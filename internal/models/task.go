package models

import "time"

// Task представляет одну строку выгрузки задач.
type Task struct {
	Title            string
	Assignees        string
	Start            *time.Time
	End              *time.Time
	Sprint           string
	Status           string
	HoursCompleted   float64
	CorrectiveAction string
}

// Dated сообщает, заданы ли у задачи обе даты.
func (t Task) Dated() bool {
	return t.Start != nil && t.End != nil
}

// Duration возвращает длительность задачи в днях.
func (t Task) Duration() int {
	if !t.Dated() {
		return 0
	}
	return int(t.End.Sub(*t.Start).Hours() / 24)
}

// Статусы, которые учитываются в сводках.
const (
	StatusTodo       = "Todo"
	StatusInProgress = "In Progress"
	StatusDone       = "Done"
)

// StatusCounts количество задач по статусам.
type StatusCounts struct {
	Todo       int `json:"todo" yaml:"todo"`
	InProgress int `json:"in_progress" yaml:"in_progress"`
	Done       int `json:"done" yaml:"done"`
}
