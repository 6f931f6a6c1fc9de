// Package gamification — catalog.go загружает каталог достижений из YAML.
package gamification

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

var validate = validator.New()

type catalogFile struct {
	Achievements []Achievement `yaml:"achievements" validate:"required,min=1,dive"`
}

// ParseCatalog разбирает и проверяет каталог достижений.
// Проверяется: непустые уникальные ID, известные типы условий, порог >= 1.
func ParseCatalog(data []byte) ([]Achievement, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	seen := make(map[string]bool, len(f.Achievements))
	for i := range f.Achievements {
		a := &f.Achievements[i]
		if seen[a.ID] {
			return nil, fmt.Errorf("%w: повторяется id %s", ErrInvalidCatalog, a.ID)
		}
		seen[a.ID] = true
		if !KnownKind(a.Predicate.Kind) {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, a.ID, ErrUnknownPredicate)
		}
		// Из YAML состояние не берём
		a.Unlocked = false
		a.UnlockedOn = nil
	}
	return f.Achievements, nil
}

// DefaultCatalog возвращает встроенный каталог.
func DefaultCatalog() []Achievement {
	achs, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		// Встроенный файл проверяется тестами
		panic(err)
	}
	return achs
}

// LoadCatalog читает каталог из файла. Пустой путь — встроенный каталог.
func LoadCatalog(path string) ([]Achievement, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать каталог достижений %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// MergeCatalog накладывает сохранённые флаги открытия на актуальный каталог.
//
// Название, описание и условие всегда берутся из каталога.
// Сохранённые достижения, которых нет в каталоге, отбрасываются.
// Новые достижения каталога появляются закрытыми.
func MergeCatalog(catalog, stored []Achievement) []Achievement {
	byID := make(map[string]Achievement, len(stored))
	for _, a := range stored {
		byID[a.ID] = a
	}

	out := make([]Achievement, len(catalog))
	for i, c := range catalog {
		out[i] = c
		out[i].Unlocked = false
		out[i].UnlockedOn = nil
		if s, ok := byID[c.ID]; ok && s.Unlocked {
			out[i].Unlocked = true
			if s.UnlockedOn != nil {
				on := *s.UnlockedOn
				out[i].UnlockedOn = &on
			}
		}
	}
	return out
}
