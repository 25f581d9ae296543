// Package repair holds the heuristic code rewrites applied when generated
// renderer code trips known API-signature mismatches. Manim moved the Axes
// sizing keywords between releases (height/width vs y_length/x_length), and a
// cheap deterministic rename recovers most of those failures without
// re-synthesizing the code.
package repair

import "strings"

// Rule is one deterministic rewrite. Trigger decides from the current code,
// the captured diagnostic text and the zero-based attempt index whether the
// rule applies; Apply returns the rewritten code.
type Rule struct {
	Name    string
	Trigger func(code, diagnostic string, attempt int) bool
	Apply   func(code string) string
}

func replaceAll(old, new string) func(string) string {
	return func(code string) string {
		return strings.ReplaceAll(code, old, new)
	}
}

// RenderRules is the ordered table consulted after a failed render. The
// first rule whose trigger matches is applied; order matters because the
// diagnostic-driven rules are more specific than the code-driven fallbacks.
var RenderRules = []Rule{
	{
		Name: "y_length-to-height",
		Trigger: func(code, diag string, _ int) bool {
			return strings.Contains(diag, "has no attribute 'y_length'") && !strings.Contains(code, "height")
		},
		Apply: replaceAll("y_length=", "height="),
	},
	{
		Name: "x_length-to-width",
		Trigger: func(code, diag string, _ int) bool {
			return strings.Contains(diag, "has no attribute 'x_length'") && !strings.Contains(code, "width")
		},
		Apply: replaceAll("x_length=", "width="),
	},
	{
		Name: "any-y_length-to-height",
		Trigger: func(code, _ string, _ int) bool {
			return strings.Contains(code, "y_length=")
		},
		Apply: replaceAll("y_length=", "height="),
	},
	{
		Name: "any-x_length-to-width",
		Trigger: func(code, _ string, _ int) bool {
			return strings.Contains(code, "x_length=")
		},
		Apply: replaceAll("x_length=", "width="),
	},
	{
		Name: "height-to-y_length-first-try",
		Trigger: func(code, _ string, attempt int) bool {
			return strings.Contains(code, "height=") && attempt == 0
		},
		Apply: replaceAll("height=", "y_length="),
	},
	{
		Name: "width-to-x_length-first-try",
		Trigger: func(code, _ string, attempt int) bool {
			return strings.Contains(code, "width=") && attempt == 0
		},
		Apply: replaceAll("width=", "x_length="),
	},
}

// Match returns the first rule in rules whose trigger fires, or nil.
func Match(rules []Rule, code, diagnostic string, attempt int) *Rule {
	for i := range rules {
		if rules[i].Trigger(code, diagnostic, attempt) {
			return &rules[i]
		}
	}
	return nil
}

// AxesSizingGate rewrites the legacy Axes sizing keyword in freshly
// synthesized code. It returns the (possibly rewritten) code and whether a
// rewrite happened; code without the trigger keyword passes through
// unchanged.
func AxesSizingGate(code string) (string, bool) {
	if !strings.Contains(code, "Axes(") || !strings.Contains(code, "height=") {
		return code, false
	}
	return strings.ReplaceAll(code, "height=", "y_length="), true
}

// HasLegacyAxesSizing reports whether Axes code still carries a sizing
// keyword that the current renderer rejects.
func HasLegacyAxesSizing(code string) bool {
	if !strings.Contains(code, "Axes(") {
		return false
	}
	return strings.Contains(code, "height=") || strings.Contains(code, "width=")
}
