package services

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DevN0mad/SprintGantt/internal/models"
)

// maxSheetNameLength ограничение Excel на длину имени листа.
const maxSheetNameLength = 31

var sheetNameReplacer = strings.NewReplacer(
	"[", "_", "]", "_", ":", "_", "*", "_", "?", "_", "/", "_", "\\", "_",
)

// Sprints возвращает спринты в порядке первого появления.
func Sprints(tasks []models.Task) []string {
	seen := make(map[string]bool)
	var sprints []string
	for _, t := range tasks {
		if !seen[t.Sprint] {
			seen[t.Sprint] = true
			sprints = append(sprints, t.Sprint)
		}
	}
	return sprints
}

// SprintLabel добавляет префикс "Sprint", если слова sprint нет в названии итерации.
func SprintLabel(sprint string) string {
	if strings.Contains(strings.ToLower(sprint), "sprint") {
		return sprint
	}
	return "Sprint " + sprint
}

// GroupBySprint разбивает задачи на листы по спринтам.
func GroupBySprint(tasks []models.Task) []models.Group {
	names := newSheetNamer()
	var groups []models.Group
	for _, sprint := range Sprints(tasks) {
		var sprintTasks []models.Task
		for _, t := range tasks {
			if t.Sprint == sprint {
				sprintTasks = append(sprintTasks, t)
			}
		}
		groups = append(groups, models.Group{
			Name:   names.next(SprintLabel(sprint)),
			Label:  sprint,
			Sprint: sprint,
			Tasks:  sprintTasks,
		})
	}
	return groups
}

// RelabelUnassigned заменяет метку неназначенных задач на метку команды.
func RelabelUnassigned(tasks []models.Task, unassignedLabel, teamLabel string) []models.Task {
	out := make([]models.Task, len(tasks))
	for i, t := range tasks {
		if t.Assignees == unassignedLabel {
			t.Assignees = teamLabel
		}
		out[i] = t
	}
	return out
}

// MembersFromTasks собирает участников из поля исполнителей, метка команды идет первой.
func MembersFromTasks(tasks []models.Task, teamLabel string) []string {
	seen := map[string]bool{teamLabel: true}
	var names []string
	for _, t := range tasks {
		for _, name := range strings.Split(t.Assignees, ",") {
			name = strings.TrimSpace(name)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return append([]string{teamLabel}, names...)
}

// GroupByAssignee разбивает задачи на листы по участнику и спринту.
// Задача попадает к каждому участнику, чье имя входит в поле исполнителей.
func GroupByAssignee(tasks []models.Task, members []string, logger *slog.Logger) []models.Group {
	if logger == nil {
		logger = slog.Default()
	}
	names := newSheetNamer()
	sprints := Sprints(tasks)

	var groups []models.Group
	for _, member := range members {
		for _, sprint := range sprints {
			var memberTasks []models.Task
			for _, t := range tasks {
				if t.Sprint == sprint && strings.Contains(t.Assignees, member) {
					memberTasks = append(memberTasks, t)
				}
			}
			if len(memberTasks) == 0 {
				logger.Debug("No tasks found for member in sprint", "member", member, "sprint", sprint)
				continue
			}

			label := strings.ReplaceAll(SprintLabel(sprint), " ", "_")
			groups = append(groups, models.Group{
				Name:   names.next(member + "_" + label),
				Label:  fmt.Sprintf("%s - Sprint %s", member, sprint),
				Sprint: sprint,
				Member: member,
				Tasks:  memberTasks,
			})
		}
	}
	return groups
}

// SprintWindow возвращает границы оси времени для задач с датами.
// Если начало совпадает с концом, окно расширяется на день в каждую сторону.
func SprintWindow(tasks []models.Task) (start, end time.Time, ok bool) {
	for _, t := range tasks {
		if !t.Dated() {
			continue
		}
		if !ok || t.Start.Before(start) {
			start = *t.Start
		}
		if !ok || t.End.After(end) {
			end = *t.End
		}
		ok = true
	}
	if ok && start.Equal(end) {
		start = start.AddDate(0, 0, -1)
		end = end.AddDate(0, 0, 1)
	}
	return start, end, ok
}

// TotalHours суммирует отработанные часы.
func TotalHours(tasks []models.Task) float64 {
	total := 0.0
	for _, t := range tasks {
		total += t.HoursCompleted
	}
	return total
}

// CountStatuses считает задачи по статусам.
func CountStatuses(tasks []models.Task) models.StatusCounts {
	var c models.StatusCounts
	for _, t := range tasks {
		switch t.Status {
		case models.StatusTodo:
			c.Todo++
		case models.StatusInProgress:
			c.InProgress++
		case models.StatusDone:
			c.Done++
		}
	}
	return c
}

// MemberSummary рассчитывает статистику по участникам.
func MemberSummary(tasks []models.Task, members []string) []models.MemberStats {
	stats := make([]models.MemberStats, 0, len(members))
	for _, member := range members {
		var matched []models.Task
		for _, t := range tasks {
			if strings.Contains(t.Assignees, member) {
				matched = append(matched, t)
			}
		}
		counts := CountStatuses(matched)
		stats = append(stats, models.MemberStats{
			Member:     member,
			Tasks:      len(matched),
			Todo:       counts.Todo,
			InProgress: counts.InProgress,
			Done:       counts.Done,
			TotalHours: TotalHours(matched),
		})
	}
	return stats
}

// sheetNamer выдает допустимые и уникальные имена листов.
type sheetNamer struct {
	used map[string]int
}

func newSheetNamer() *sheetNamer {
	return &sheetNamer{used: make(map[string]int)}
}

func (n *sheetNamer) next(name string) string {
	name = trimSheetName(sheetNameReplacer.Replace(name))
	name = trimSheetName(truncateRunes(name, maxSheetNameLength))
	if name == "" {
		name = "Sheet"
	}

	key := strings.ToLower(name)
	n.used[key]++
	if n.used[key] == 1 {
		return name
	}

	for i := n.used[key]; ; i++ {
		suffix := fmt.Sprintf("~%d", i)
		candidate := truncateRunes(name, maxSheetNameLength-len(suffix)) + suffix
		if _, taken := n.used[strings.ToLower(candidate)]; !taken {
			n.used[strings.ToLower(candidate)] = 1
			return candidate
		}
	}
}

// trimSheetName убирает пробелы и апострофы по краям: Excel не принимает имя листа,
// которое начинается или заканчивается на '.
func trimSheetName(name string) string {
	return strings.Trim(name, "' \t")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
