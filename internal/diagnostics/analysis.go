package diagnostics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"quicklaunch/internal/models"
)

const recentWindow = 7 * 24 * time.Hour

// ClassifyErrorType maps a troubleshooting-log message to an ErrorType by the
// regexes in spec.md §4.6.2.
func ClassifyErrorType(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "port") && strings.Contains(lower, "in use"):
		return models.ErrorTypePortInUse
	case strings.Contains(lower, "not found") || strings.Contains(lower, "not exist"):
		return models.ErrorTypePathNotFound
	case strings.Contains(lower, "module"):
		return models.ErrorTypeMissingModule
	case strings.Contains(lower, "exited with code"):
		return models.ErrorTypeCrash
	default:
		return models.ErrorTypeUnknown
	}
}

// ClassifyIssueKeyword maps a free-form resolution "issue" string to an
// ErrorType by loose keyword matching (spec.md §4.6.5: "auto-classify by
// keyword over issue"). It is more permissive than ClassifyErrorType, which
// matches the stricter log-message grammar of §4.6.2.
func ClassifyIssueKeyword(issue string) string {
	lower := strings.ToLower(issue)
	switch {
	case strings.Contains(lower, "port"):
		return models.ErrorTypePortInUse
	case strings.Contains(lower, "path") || strings.Contains(lower, "not found") || strings.Contains(lower, "not exist") || strings.Contains(lower, "directory"):
		return models.ErrorTypePathNotFound
	case strings.Contains(lower, "module") || strings.Contains(lower, "dependen") || strings.Contains(lower, "install"):
		return models.ErrorTypeMissingModule
	case strings.Contains(lower, "crash") || strings.Contains(lower, "exited"):
		return models.ErrorTypeCrash
	default:
		return models.ErrorTypeUnknown
	}
}

// normalExitCodes mirrors supervisor's exit classification so analysis can
// recognize a clean exit's message even without the normalTermination flag.
var normalExitCodes = map[int]bool{0: true, 0xC000013A: true, 0x40010004: true}

var exitCodeRE = regexp.MustCompile(`exited with code (-?\d+)`)

// Analyze runs PatternAnalysis for a single app (spec.md §4.6.2): classify
// every WARN/ERROR line not flagged normalTermination, discount anything at
// or before the latest "resolved" resolution for its ErrorType, and derive a
// recommendation tier from the count of undiscounted failures in the last 7
// days.
func (e *Engine) Analyze(appName string) (models.Analysis, error) {
	lines, err := e.readLines()
	if err != nil {
		return models.Analysis{}, err
	}
	resolutions, err := e.readResolutions()
	if err != nil {
		return models.Analysis{}, err
	}

	resolvedAt := map[string]time.Time{}
	for _, r := range resolutions {
		if r.Disposition != models.DispositionResolved {
			continue
		}
		if cur, ok := resolvedAt[r.ErrorType]; !ok || r.Date.After(cur) {
			resolvedAt[r.ErrorType] = r.Date
		}
	}

	now := time.Now()
	counts := map[string]int{}
	var dominant string
	var dominantCount int

	for _, l := range lines {
		if l.App != appName {
			continue
		}
		if l.Level != "WARN" && l.Level != "ERROR" {
			continue
		}
		if normal, _ := l.Details["normalTermination"].(bool); normal {
			continue
		}
		if m := exitCodeRE.FindStringSubmatch(l.Message); m != nil {
			if code, err := strconv.Atoi(m[1]); err == nil && normalExitCodes[code] {
				continue
			}
		}
		errType := ClassifyErrorType(l.Message)
		if resolvedSince, ok := resolvedAt[errType]; ok && !l.Time.After(resolvedSince) {
			continue // discounted: resolution postdates this failure
		}
		if now.Sub(l.Time) > recentWindow {
			continue
		}
		counts[errType]++
		if counts[errType] > dominantCount {
			dominant, dominantCount = errType, counts[errType]
		}
	}

	analysis := models.Analysis{AppName: appName, ErrorType: dominant, RecentFailures: dominantCount}
	switch {
	case dominantCount >= 6:
		analysis.Recommendation = models.RecommendationCritical
		analysis.ShouldAutoTodo = true
	case dominantCount >= 3:
		analysis.Recommendation = models.RecommendationWarning
	default:
		return analysis, nil
	}

	msg, action := cannedAction(dominant, analysis.Recommendation)
	analysis.Message = fmt.Sprintf(msg, appName, dominantCount)
	analysis.Action = action
	return analysis, nil
}

// cannedAction returns the message template and action string for an error
// type/tier pair (spec.md §4.6.2: "two canned action strings... and a
// pattern message template").
func cannedAction(errType, tier string) (template string, action string) {
	templates := map[string]string{
		models.ErrorTypePortInUse:     "%[1]s has hit a port conflict %[2]d times recently",
		models.ErrorTypePathNotFound:  "%[1]s has hit a missing path/file %[2]d times recently",
		models.ErrorTypeMissingModule: "%[1]s has hit a missing dependency %[2]d times recently",
		models.ErrorTypeCrash:         "%[1]s has crashed %[2]d times recently",
		models.ErrorTypeUnknown:       "%[1]s has failed %[2]d times recently",
	}
	actions := map[string]map[string]string{
		models.ErrorTypePortInUse: {
			models.RecommendationWarning:  "Check for a stale process holding the port before the next start",
			models.RecommendationCritical: "Reserve a dedicated port for this app or free the conflicting process permanently",
		},
		models.ErrorTypePathNotFound: {
			models.RecommendationWarning:  "Verify the declared path still exists",
			models.RecommendationCritical: "The app's path appears to have moved or been deleted; update its configuration",
		},
		models.ErrorTypeMissingModule: {
			models.RecommendationWarning:  "Run the package install for this app",
			models.RecommendationCritical: "Dependencies are repeatedly missing; add a post-checkout install step",
		},
		models.ErrorTypeCrash: {
			models.RecommendationWarning:  "Review recent logs for the crash cause",
			models.RecommendationCritical: "This app is crash-looping; investigate before relying on auto-restart",
		},
		models.ErrorTypeUnknown: {
			models.RecommendationWarning:  "Review recent logs for this app",
			models.RecommendationCritical: "This app is failing repeatedly for an unclassified reason; investigate",
		},
	}

	tpl := templates[errType]
	if tpl == "" {
		tpl = templates[models.ErrorTypeUnknown]
	}
	act := actions[errType][tier]
	if act == "" {
		act = actions[models.ErrorTypeUnknown][tier]
	}
	return tpl, act
}
