// Package gamification — errors.go описывает ошибки ядра геймификации.
package gamification

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidThresholdTable — таблица порогов не начинается с 0 или не строго возрастает.
	// Это ошибка конфигурации, сервис с такой таблицей не стартует.
	ErrInvalidThresholdTable = errors.New("некорректная таблица порогов уровней")
	// ErrNegativeXP — опыт не может быть отрицательным
	ErrNegativeXP = errors.New("опыт не может быть отрицательным")
	// ErrUnknownPredicate — неизвестный тип условия достижения
	ErrUnknownPredicate = errors.New("неизвестный тип условия")
	// ErrInvalidPredicate — у условия некорректный порог
	ErrInvalidPredicate = errors.New("некорректный порог условия")
	// ErrInvalidCatalog — каталог достижений не прошёл проверку
	ErrInvalidCatalog = errors.New("некорректный каталог достижений")
)

// PredicateError — сбой одного условия достижения.
// Не фатален: достижение остаётся закрытым, остальные проверяются дальше.
type PredicateError struct {
	AchievementID string
	Kind          PredicateKind
	Err           error
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("достижение %s (%s): %v", e.AchievementID, e.Kind, e.Err)
}

func (e *PredicateError) Unwrap() error { return e.Err }
