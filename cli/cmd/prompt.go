package cmd

import (
	"github.com/charmbracelet/huh"
)

// confirmPrompt asks the user to confirm a destructive operation,
// defaulting to No. Any prompt failure (for example a non-interactive
// terminal) counts as a decline.
func confirmPrompt(prompt string) bool {
	confirmed := false
	field := huh.NewConfirm().
		Title("Purge stale resource files?").
		Description(prompt).
		Affirmative("Delete").
		Negative("Keep").
		Value(&confirmed)

	form := huh.NewForm(huh.NewGroup(field)).WithShowHelp(false)
	if err := form.Run(); err != nil {
		return false
	}
	return confirmed
}
