// Package schemas embeds the JSON Schemas used to validate admin request bodies.
package schemas

import (
	"embed"
	"fmt"
)

// Schema file names.
const (
	StatusTransition = "status_transition.schema.json"
	Vacancy          = "vacancy.schema.json"
	VacancyUpdate    = "vacancy_update.schema.json"
)

//go:embed *.schema.json
var FS embed.FS

// Load returns the raw schema document called name.
func Load(name string) ([]byte, error) {
	data, err := FS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
	}
	return data, nil
}
