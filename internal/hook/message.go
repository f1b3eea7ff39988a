package hook

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
)

// systemMessagePrefix is the sentinel the host greps for on stderr.
const systemMessagePrefix = "[[system-message]]: "

// maxPerSource caps how many diagnostics from one source appear in the
// emitted message; overflow is folded into the summary counts instead.
const maxPerSource = 5

type systemMessage struct {
	Summary     string                   `json:"summary"`
	Diagnostics []diagnostic.Diagnostic `json:"diagnostics,omitempty"`
}

// FormatSystemMessage builds the single stderr line for a set of fresh
// diagnostics, capping each source's entries at maxPerSource and folding
// overflow counts into the summary.
func FormatSystemMessage(diags []diagnostic.Diagnostic) string {
	if len(diags) == 0 {
		msg := systemMessage{Summary: "no warnings or errors"}
		return systemMessagePrefix + mustJSON(msg)
	}

	bySource := make(map[string][]diagnostic.Diagnostic)
	var sources []string
	for _, d := range diags {
		if _, ok := bySource[d.Source]; !ok {
			sources = append(sources, d.Source)
		}
		bySource[d.Source] = append(bySource[d.Source], d)
	}
	sort.Strings(sources)

	var capped []diagnostic.Diagnostic
	var parts []string
	for _, src := range sources {
		all := bySource[src]
		n := len(all)
		shown := all
		if n > maxPerSource {
			shown = all[:maxPerSource]
		}
		capped = append(capped, shown...)

		label := fmt.Sprintf("%d for %s", n, src)
		if n > maxPerSource {
			label += fmt.Sprintf(" (showing %d)", maxPerSource)
		}
		parts = append(parts, label)
	}

	summary := fmt.Sprintf("total: %d diagnostics (%s)", len(diags), strings.Join(parts, ", "))
	msg := systemMessage{Summary: summary, Diagnostics: capped}
	return systemMessagePrefix + mustJSON(msg)
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"summary":"internal error formatting diagnostics"}`
	}
	return string(data)
}
