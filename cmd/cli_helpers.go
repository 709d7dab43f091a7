package cmd

import (
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/nextlevelbuilder/snapdiff/internal/config"
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

func resolveConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	return config.DefaultPath
}

// updateModeRequested honors both the --update flag and the
// environment toggle used by CI wrappers.
func updateModeRequested(flag bool) bool {
	if flag {
		return true
	}
	switch os.Getenv("SNAPDIFF_UPDATE_BASELINES") {
	case "", "0", "false", "no":
		return false
	}
	return true
}
