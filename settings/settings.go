// Package settings persists the user-facing behaviour switches of the
// compare session to a TOML file.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Settings holds everything the user can tune. Zero values are never used
// directly; Load fills in defaults for missing fields.
type Settings struct {
	// FollowingCaret makes navigation and view sync track the caret instead
	// of the viewport edge.
	FollowingCaret bool `toml:"following_caret"`

	// WrapAround lets next/previous difference jumps wrap past the ends.
	WrapAround bool `toml:"wrap_around"`

	// GoToFirstDiff jumps to the first difference after a fresh compare.
	GoToFirstDiff bool `toml:"go_to_first_diff"`

	// RecompareOnChange re-runs the comparison automatically after edits
	// instead of only adjusting the alignment.
	RecompareOnChange bool `toml:"recompare_on_change"`

	// PromptToCloseOnMatch closes a pair whose documents compare equal
	// again after an edit, instead of keeping the empty comparison open.
	PromptToCloseOnMatch bool `toml:"prompt_to_close_on_match"`

	// ReplaceDetectMillis is the window in which a delete followed by an
	// insert of the opposite undo kind is treated as a single replace.
	ReplaceDetectMillis int `toml:"replace_detect_millis"`

	// MaxRealignRetries bounds consecutive delayed re-alignment passes.
	MaxRealignRetries int `toml:"max_realign_retries"`

	IgnoreCase        bool `toml:"ignore_case"`
	IgnoreSpaces      bool `toml:"ignore_spaces"`
	IgnoreEmptyLines  bool `toml:"ignore_empty_lines"`
	IgnoreLineNumbers bool `toml:"ignore_line_numbers"`
	DetectMoves       bool `toml:"detect_moves"`
}

// Default returns the settings used when no file exists yet.
func Default() Settings {
	return Settings{
		FollowingCaret:      true,
		WrapAround:          false,
		GoToFirstDiff:       true,
		RecompareOnChange:   false,
		ReplaceDetectMillis: 40,
		MaxRealignRetries:   1,
		DetectMoves:         true,
	}
}

// DefaultPath is the standard settings location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "comparetab", "settings.toml"), nil
}

// Load reads settings from filePath, returning defaults when the file does
// not exist.
func Load(filePath string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := toml.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("failed to parse settings file: %w", err)
	}

	if s.ReplaceDetectMillis <= 0 {
		s.ReplaceDetectMillis = Default().ReplaceDetectMillis
	}
	if s.MaxRealignRetries < 0 {
		s.MaxRealignRetries = Default().MaxRealignRetries
	}

	return s, nil
}

// Save writes settings to filePath, creating parent directories as needed.
func (s Settings) Save(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}
