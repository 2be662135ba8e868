package diagnostics

import (
	"fmt"
	"os"
	"strings"
	"time"

	"quicklaunch/internal/logger"
	"quicklaunch/internal/models"
)

const (
	sectionAutoDetected = "Auto-Detected Issues (from troubleshooting log)"
	sectionSupportCodes = "Support Codes Reference"
	sectionNextSession  = "Next Session"
	sectionParkingLot   = "Parking Lot"
)

func (e *Engine) readTodoLines() ([]string, error) {
	data, err := os.ReadFile(e.todoPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read TODO.md: %w", err)
	}
	return strings.Split(string(data), "\n"), nil
}

func (e *Engine) writeTodoLines(lines []string) error {
	return os.WriteFile(e.todoPath(), []byte(strings.Join(lines, "\n")), 0o644)
}

func headerTitle(line string) (title string, level int, ok bool) {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "### "):
		return strings.TrimSpace(strings.TrimPrefix(trimmed, "### ")), 3, true
	case strings.HasPrefix(trimmed, "## "):
		return strings.TrimSpace(strings.TrimPrefix(trimmed, "## ")), 2, true
	default:
		return "", 0, false
	}
}

// Items scans TODO.md and returns every checkbox item plus every
// auto-detected pseudo-item (spec.md §4.6.4).
func (e *Engine) Items() ([]models.TodoItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lines, err := e.readTodoLines()
	if err != nil {
		return nil, err
	}

	var items []models.TodoItem
	section := ""
	markedImplement := false
	markedParking := false
	inAutoDetected := false
	skip := false

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if title, level, ok := headerTitle(line); ok && level == 2 {
			switch title {
			case "High", "Medium", "Low":
				section, markedImplement, markedParking, inAutoDetected, skip = title, false, false, false, false
			case sectionNextSession:
				markedImplement, skip, inAutoDetected = true, false, false
			case sectionParkingLot:
				markedParking, skip, inAutoDetected = true, false, false
			case sectionAutoDetected:
				inAutoDetected, skip = true, true
			default:
				inAutoDetected, skip = false, true
			}
			continue
		}

		if inAutoDetected {
			if title, level, ok := headerTitle(line); ok && level == 3 {
				block := []string{title}
				j := i + 1
				for ; j < len(lines); j++ {
					if _, lvl, ok := headerTitle(lines[j]); ok && lvl <= 3 {
						break
					}
					if strings.TrimSpace(lines[j]) != "" {
						block = append(block, strings.TrimSpace(lines[j]))
					}
				}
				items = append(items, models.TodoItem{
					Text:           "[Auto] " + title,
					Priority:       "High",
					Section:        sectionAutoDetected,
					Description:    strings.Join(block[1:], " "),
					IsAutoDetected: true,
					OriginalText:   title,
				})
				continue
			}
		}

		if skip {
			continue
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- [ ] ") {
			text := strings.TrimPrefix(trimmed, "- [ ] ")
			desc := ""
			if i+1 < len(lines) {
				next := strings.TrimSpace(lines[i+1])
				if strings.HasPrefix(next, "> ") {
					desc = strings.TrimPrefix(next, "> ")
				}
			}
			items = append(items, models.TodoItem{
				Text:               text,
				Priority:           section,
				Section:            section,
				Description:        desc,
				MarkedForImplement: markedImplement,
				MarkedParking:      markedParking,
				OriginalText:       line,
			})
		}
	}

	return items, nil
}

// SynthesizeTodo inserts an auto-detected entry for appName, idempotent per
// day per app (spec.md §4.6.3).
func (e *Engine) SynthesizeTodo(appName string, analysis models.Analysis) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	prefix := fmt.Sprintf("[%s] %s", today, appName)

	lines, err := e.readTodoLines()
	if err != nil {
		return err
	}
	for _, l := range lines {
		if strings.Contains(l, prefix) {
			logger.Debug("auto-todo already present for today", "app", appName)
			return nil
		}
	}

	header := fmt.Sprintf("### %s", prefix)
	detail := fmt.Sprintf("  %s — %s", analysis.Message, analysis.Action)

	lines = insertUnderSection(lines, sectionAutoDetected, sectionSupportCodes, []string{header, detail, ""})
	logger.Info("auto-todo synthesized", "app", appName, "errorType", analysis.ErrorType)
	return e.writeTodoLines(lines)
}

// insertUnderSection inserts entry at the end of the "## sectionTitle"
// section, after any existing content belonging to it (creating the section
// before beforeTitle, or at file end, if absent).
func insertUnderSection(lines []string, sectionTitle, beforeTitle string, entry []string) []string {
	for i, line := range lines {
		if title, level, ok := headerTitle(line); ok && level == 2 && title == sectionTitle {
			j := i + 1
			for ; j < len(lines); j++ {
				if _, lvl, ok := headerTitle(lines[j]); ok && lvl == 2 {
					break
				}
			}
			out := make([]string, 0, len(lines)+len(entry))
			out = append(out, lines[:j]...)
			out = append(out, entry...)
			out = append(out, lines[j:]...)
			return out
		}
	}

	// section absent: create it before beforeTitle, or at end.
	newSection := append([]string{"## " + sectionTitle, ""}, entry...)
	if beforeTitle != "" {
		for i, line := range lines {
			if title, level, ok := headerTitle(line); ok && level == 2 && title == beforeTitle {
				out := make([]string, 0, len(lines)+len(newSection))
				out = append(out, lines[:i]...)
				out = append(out, newSection...)
				out = append(out, lines[i:]...)
				return out
			}
		}
	}
	out := append([]string{}, lines...)
	if len(out) > 0 && strings.TrimSpace(out[len(out)-1]) != "" {
		out = append(out, "")
	}
	out = append(out, newSection...)
	return out
}

// insertAtTopOfSection inserts entry as the first line under "## sectionTitle",
// creating that section before the first "## " heading if absent.
func insertAtTopOfSection(lines []string, sectionTitle string, entry []string) []string {
	for i, line := range lines {
		if title, level, ok := headerTitle(line); ok && level == 2 && title == sectionTitle {
			out := make([]string, 0, len(lines)+len(entry))
			out = append(out, lines[:i+1]...)
			out = append(out, entry...)
			out = append(out, lines[i+1:]...)
			return out
		}
	}
	for i, line := range lines {
		if _, level, ok := headerTitle(line); ok && level == 2 {
			newSection := append([]string{"## " + sectionTitle}, entry...)
			newSection = append(newSection, "")
			out := make([]string, 0, len(lines)+len(newSection))
			out = append(out, lines[:i]...)
			out = append(out, newSection...)
			out = append(out, lines[i:]...)
			return out
		}
	}
	newSection := append([]string{"## " + sectionTitle}, entry...)
	return append(append([]string{}, lines...), newSection...)
}

// removeItem deletes the lines belonging to item (its checkbox line plus an
// optional description line, or an auto-detected block), returning the new
// line slice and whether anything was removed.
func removeItem(lines []string, item models.TriageItem) ([]string, bool) {
	if strings.HasPrefix(item.Text, "[Auto] ") {
		title := strings.TrimPrefix(item.Text, "[Auto] ")
		for i, line := range lines {
			if t, level, ok := headerTitle(line); ok && level == 3 && t == title {
				j := i + 1
				for ; j < len(lines); j++ {
					if _, lvl, ok := headerTitle(lines[j]); ok && lvl <= 3 {
						break
					}
				}
				out := append([]string{}, lines[:i]...)
				out = append(out, lines[j:]...)
				return out, true
			}
		}
		return lines, false
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- [ ] ") || !strings.Contains(trimmed, item.Text) {
			continue
		}
		end := i + 1
		if end < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[end]), "> ") {
			end++
		}
		out := append([]string{}, lines[:i]...)
		out = append(out, lines[end:]...)
		return out, true
	}
	return lines, false
}

// deleteFirstTodoContaining removes the first unchecked TODO item whose text
// contains issue (spec.md §4.6.5).
func (e *Engine) deleteFirstTodoContaining(issue string) (bool, error) {
	lines, err := e.readTodoLines()
	if err != nil {
		return false, err
	}
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- [ ] ") && strings.Contains(trimmed, issue) {
			end := i + 1
			if end < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[end]), "> ") {
				end++
			}
			out := append([]string{}, lines[:i]...)
			out = append(out, lines[end:]...)
			return true, e.writeTodoLines(out)
		}
	}
	return false, nil
}

// Triage applies a batch of triage decisions (spec.md §4.6.4).
func (e *Engine) Triage(app string, items []models.TriageItem) (models.TriageResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lines, err := e.readTodoLines()
	if err != nil {
		return models.TriageResult{}, err
	}

	var result models.TriageResult
	for _, item := range items {
		newLines, removed := removeItem(lines, item)
		if !removed {
			continue
		}
		lines = newLines

		switch item.Action {
		case "parking":
			lines = insertUnderSection(lines, sectionParkingLot, sectionSupportCodes, []string{"- [ ] " + item.Text})
			result.Parking++
		case "implement":
			lines = insertAtTopOfSection(lines, sectionNextSession, []string{"- [ ] " + item.Text})
			result.Implement++
		case "dontdo":
			errType := models.ErrorTypeTodoTriaged
			if item.Priority == "High" && strings.HasPrefix(item.Text, "[Auto] ") {
				errType = models.ErrorTypeAutoDetectedResolved
			}
			if err := e.appendResolution(models.Resolution{
				Date:        time.Now(),
				App:         app,
				Issue:       item.Text,
				ErrorType:   errType,
				Disposition: models.DispositionCancelled,
				Explanation: "triaged as don't-do",
			}); err != nil {
				return result, err
			}
			result.Dontdo++
		}
	}

	if err := e.writeTodoLines(lines); err != nil {
		return result, err
	}
	logger.Info("todo triage applied", "parking", result.Parking, "implement", result.Implement, "dontdo", result.Dontdo)
	return result, nil
}
