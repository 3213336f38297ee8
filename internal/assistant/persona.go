package assistant

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"
)

//go:embed persona.txt
var defaultPersona string

// LoadPersona reads the persona instruction from path, or returns the
// built-in persona when path is empty.
func LoadPersona(path string) (string, error) {
	if path == "" {
		return defaultPersona, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("error reading persona file: %w", err)
	}
	persona := strings.TrimSpace(string(data))
	if persona == "" {
		return "", fmt.Errorf("persona file %s is empty", path)
	}
	return persona, nil
}

// TimeOfDay names the part of the day used in greetings.
func TimeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "Morning"
	case h < 17:
		return "Afternoon"
	default:
		return "Evening"
	}
}

// RenderPersona fills the {time_of_day} placeholder.
func RenderPersona(persona string, now time.Time) string {
	return strings.ReplaceAll(persona, "{time_of_day}", TimeOfDay(now))
}
