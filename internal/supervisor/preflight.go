package supervisor

import (
	"os"
	"path/filepath"
	"strings"

	"quicklaunch/internal/models"
)

// packageManagerTokens are the first-argv tokens that identify a Node
// package-manager invocation. DefaultIsPackageManagerCommand is the
// out-of-the-box predicate; LifecycleManager.IsPackageManagerCommand is a
// pluggable override (spec.md §9 open question: a heuristic predicate, not
// a hard-wired string compare).
var packageManagerTokens = map[string]bool{"npm": true, "yarn": true, "pnpm": true}

// DefaultIsPackageManagerCommand reports whether argv's first token (or its
// base name, so "/usr/local/bin/npm" still matches) is a known Node package
// manager.
func DefaultIsPackageManagerCommand(argv []string) bool {
	if len(argv) == 0 {
		return false
	}
	return packageManagerTokens[filepath.Base(argv[0])]
}

// detectPackageManager infers the package manager from lockfile presence
// (spec.md §4.3.1 step 5, scenario S2): yarn.lock ⇒ yarn, pnpm-lock.yaml ⇒
// pnpm, otherwise npm.
func detectPackageManager(dir string) string {
	if fileExists(filepath.Join(dir, "yarn.lock")) {
		return "yarn"
	}
	if fileExists(filepath.Join(dir, "pnpm-lock.yaml")) {
		return "pnpm"
	}
	return "npm"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// checkPath implements preflight step 4.
func checkPath(path string) *models.StructuredError {
	if dirExists(path) {
		return nil
	}
	return &models.StructuredError{
		Kind:        "PATH_NOT_FOUND",
		SupportCode: models.SupportPathMissing,
		Message:     "app path does not exist: " + path,
		Suggestion:  "Verify the declared path and correct it before starting this app.",
		Troubleshooting: []string{
			"Checked directory: " + path,
			"The directory was not found on disk.",
		},
	}
}

// CheckDeps reports install-need without producing a StructuredError, for
// the /api/check-deps endpoint (spec.md §6).
func CheckDeps(path string) (needsInstall, hasPackageJSON bool, packageManager string) {
	hasPackageJSON = fileExists(filepath.Join(path, "package.json"))
	packageManager = detectPackageManager(path)
	needsInstall = hasPackageJSON && !dirExists(filepath.Join(path, "node_modules"))
	return
}

// checkManifestAndDeps implements preflight step 5: only applies when the
// command is a package-manager invocation.
func (m *LifecycleManager) checkManifestAndDeps(path string, argv []string) *models.StructuredError {
	isPM := m.IsPackageManagerCommand
	if isPM == nil {
		isPM = DefaultIsPackageManagerCommand
	}
	if !isPM(argv) {
		return nil
	}

	manifest := filepath.Join(path, "package.json")
	if !fileExists(manifest) {
		return &models.StructuredError{
			Kind:        "MISSING_MANIFEST",
			SupportCode: models.SupportManifestMissing,
			Message:     "package.json not found in " + path,
			Suggestion:  "This directory does not look like a Node project; verify the path.",
			Troubleshooting: []string{
				"Expected manifest: " + manifest,
			},
		}
	}

	depsDir := filepath.Join(path, "node_modules")
	if !dirExists(depsDir) {
		pm := detectPackageManager(path)
		return &models.StructuredError{
			Kind:           "MISSING_DEPENDENCIES",
			SupportCode:    models.SupportDepsMissing,
			Message:        "dependencies not installed in " + path,
			Suggestion:     "Run " + pm + " install before starting this app.",
			NeedsInstall:   true,
			PackageManager: pm,
			Troubleshooting: []string{
				"Expected dependency directory: " + depsDir,
				"Inferred package manager: " + pm,
			},
		}
	}
	return nil
}

// startupCrashMarkers classify stdout/stderr lines observed during spawn
// into structured hints (spec.md §4.3.1 step 7).
var startupCrashMarkers = []struct {
	marker string
	kind   string
}{
	{"EADDRINUSE", "PORT_IN_USE"},
	{"Cannot find module", "MISSING_DEPENDENCIES"},
	{"ENOENT", "FILE_NOT_FOUND"},
}

func classifyLine(line string) (kind string, matched bool) {
	for _, m := range startupCrashMarkers {
		if strings.Contains(line, m.marker) {
			return m.kind, true
		}
	}
	return "", false
}
