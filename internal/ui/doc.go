// Package ui renders fleet's human-facing terminal output.
//
// Styles and symbols give every command the same look. Tables are built on
// the Bubbles table component. While a project is resolved across hosts,
// ResolveProgress draws one spinner per host with Bubble Tea, and the
// hosts import command asks for a selection with a Huh form.
//
// Nothing here is used in --json mode or when stdout is not a terminal;
// ConfigureColor switches styles to plain text in that case.
package ui
