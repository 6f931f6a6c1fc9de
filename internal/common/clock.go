// Package common — clock.go содержит источник текущего времени.
// Все сервисы получают «сегодня» только через Clock, поэтому
// тесты и админская подмена даты работают одинаково.
package common

import (
	"sync"
	"time"

	"cloud.google.com/go/civil"
)

// Clock отдаёт текущее время.
type Clock interface {
	Now() time.Time
}

// SystemClock — настоящие часы.
type SystemClock struct{}

// Now возвращает time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock всегда возвращает одно и то же время. Нужен в тестах.
type FixedClock struct {
	T time.Time
}

// Now возвращает зафиксированное время.
func (c FixedClock) Now() time.Time { return c.T }

// Today возвращает календарную дату в часовом поясе loc.
func Today(c Clock, loc *time.Location) civil.Date {
	return civil.DateOf(c.Now().In(loc))
}

// SimulatedClock оборачивает базовые часы и позволяет администратору
// подменить текущую дату. Время суток берётся из базовых часов.
type SimulatedClock struct {
	base Clock
	loc  *time.Location

	mu       sync.RWMutex
	override *civil.Date // nil — подмены нет
}

// NewSimulatedClock создаёт часы с возможностью подмены даты.
func NewSimulatedClock(base Clock, loc *time.Location) *SimulatedClock {
	if base == nil {
		base = SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SimulatedClock{base: base, loc: loc}
}

// Now возвращает текущее время с учётом подменённой даты.
func (c *SimulatedClock) Now() time.Time {
	now := c.base.Now().In(c.loc)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.override == nil {
		return now
	}

	d := *c.override
	return time.Date(d.Year, d.Month, d.Day,
		now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), c.loc)
}

// Location возвращает часовой пояс, в котором считаются даты.
func (c *SimulatedClock) Location() *time.Location { return c.loc }

// SetOverride включает подмену даты.
func (c *SimulatedClock) SetOverride(d civil.Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.override = &d
}

// ClearOverride возвращает настоящую дату.
func (c *SimulatedClock) ClearOverride() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.override = nil
}

// Override возвращает подменённую дату, если она задана.
func (c *SimulatedClock) Override() (civil.Date, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.override == nil {
		return civil.Date{}, false
	}
	return *c.override, true
}
