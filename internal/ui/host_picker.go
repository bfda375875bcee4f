package ui

import (
	stderrors "errors"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/fleet/internal/errors"
)

// ImportCandidate is an ssh_config alias offered for import.
type ImportCandidate struct {
	Alias       string
	Description string
	Configured  bool // already present in fleet.yaml
}

// PickImportHosts asks which aliases to import. Aliases that are already
// configured are listed but not preselected. An aborted form returns no
// selection and no error.
func PickImportHosts(candidates []ImportCandidate) ([]string, error) {
	if len(candidates) == 0 {
		return nil, errors.New(errors.ErrConfig,
			"No ssh_config hosts to import",
			"Add Host entries to ~/.ssh/config or pass --ssh-config")
	}

	var selected []string
	options := make([]huh.Option[string], len(candidates))
	for i, c := range candidates {
		if !c.Configured {
			selected = append(selected, c.Alias)
		}
		label := c.Alias
		if c.Description != "" && c.Description != c.Alias {
			label += "  " + MutedStyle().Render(c.Description)
		}
		if c.Configured {
			label += "  " + WarningStyle().Render("(configured)")
		}
		options[i] = huh.NewOption(label, c.Alias).Selected(!c.Configured)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Import which hosts into fleet.yaml?").
				Options(options...).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		if stderrors.Is(err, huh.ErrUserAborted) {
			return nil, nil
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig, "Host picker failed",
			"Pass --all to import every alias without prompting")
	}
	// Non-nil even when nothing was picked, so callers can tell it from an abort.
	return append([]string{}, selected...), nil
}
