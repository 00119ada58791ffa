// Package ui colors CLI status lines with lipgloss.
//
// A [Palette] maps journal statuses, outcomes and connectivity to styles. Output that is not a terminal
// gets a plain palette via [Palette.For], so piped and redirected output carries no escape codes.
package ui
