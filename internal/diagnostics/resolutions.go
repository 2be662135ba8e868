package diagnostics

import (
	"fmt"
	"os"
	"strings"
	"time"

	"quicklaunch/internal/logger"
	"quicklaunch/internal/models"
)

// AddResolution appends a Resolution record and then deletes the first
// unchecked TODO item whose text contains issue (spec.md §4.6.5). If
// errType is empty or "UNKNOWN" it is auto-classified by keyword over issue.
func (e *Engine) AddResolution(app, issue, errType, disposition, explanation, notes string) (models.Resolution, bool, error) {
	if errType == "" || errType == models.ErrorTypeUnknown {
		errType = ClassifyIssueKeyword(issue)
	}

	res := models.Resolution{
		Date:        time.Now(),
		App:         app,
		Issue:       issue,
		ErrorType:   errType,
		Disposition: disposition,
		Explanation: explanation,
		Notes:       notes,
	}

	e.mu.Lock()
	err := e.appendResolution(res)
	e.mu.Unlock()
	if err != nil {
		return res, false, err
	}

	deleted, err := e.deleteFirstTodoContaining(issue)
	if err != nil {
		return res, deleted, err
	}
	logger.Info("resolution recorded", "app", app, "errorType", errType, "disposition", disposition, "todoDeleted", deleted)
	return res, deleted, nil
}

func (e *Engine) appendResolution(r models.Resolution) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", r.Date.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "App: %s\n", r.App)
	fmt.Fprintf(&b, "Issue: %s\n", r.Issue)
	fmt.Fprintf(&b, "ErrorType: %s\n", r.ErrorType)
	fmt.Fprintf(&b, "Disposition: %s\n", r.Disposition)
	if r.Explanation != "" {
		fmt.Fprintf(&b, "Explanation: %s\n", r.Explanation)
	}
	if r.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", r.Notes)
	}
	b.WriteString("---\n")

	f, err := os.OpenFile(e.resolutionsPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open resolutions log: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}

// readResolutions parses every `---`-separated record in the resolutions log.
func (e *Engine) readResolutions() ([]models.Resolution, error) {
	data, err := os.ReadFile(e.resolutionsPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read resolutions log: %w", err)
	}

	var out []models.Resolution
	for _, block := range strings.Split(string(data), "---") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		var r models.Resolution
		for _, line := range strings.Split(block, "\n") {
			key, val, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			val = strings.TrimSpace(val)
			switch strings.TrimSpace(key) {
			case "Date":
				if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
					r.Date = t
				}
			case "App":
				r.App = val
			case "Issue":
				r.Issue = val
			case "ErrorType":
				r.ErrorType = val
			case "Disposition":
				r.Disposition = val
			case "Explanation":
				r.Explanation = val
			case "Notes":
				r.Notes = val
			}
		}
		if r.App != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

// Resolutions returns every recorded resolution, most recent first.
func (e *Engine) Resolutions() ([]models.Resolution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out, err := e.readResolutions()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
