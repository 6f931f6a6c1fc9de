// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях сервиса.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отдавать клиенту понятные сообщения с правильным HTTP-статусом.
package common

import "errors"

// Ошибки аккаунтов и авторизации
var (
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrUsernameTaken — имя пользователя уже занято
	ErrUsernameTaken = errors.New("Имя занято")
	// ErrInvalidCredentials — неверная пара логин/пароль
	ErrInvalidCredentials = errors.New("Неверные данные")
	// ErrUnauthorized — нет токена или токен неизвестен
	ErrUnauthorized = errors.New("требуется авторизация")
	// ErrSessionExpired — сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrTooManyRequests — превышен лимит запросов
	ErrTooManyRequests = errors.New("слишком много запросов, попробуйте позже")
)

// Ошибки привычек
var (
	// ErrHabitNotFound — привычка с таким id не найдена у пользователя
	ErrHabitNotFound = errors.New("привычка не найдена")
	// ErrInvalidDate — дату не удалось разобрать
	ErrInvalidDate = errors.New("некорректная дата")
	// ErrFutureDate — попытка отметить привычку в будущем
	ErrFutureDate = errors.New("нельзя отметить привычку в будущем")
	// ErrValidation — входные данные не прошли проверку
	ErrValidation = errors.New("некорректные данные")
)

// Ошибки сообществ
var (
	// ErrCommunityNotFound — сообщество не найдено
	ErrCommunityNotFound = errors.New("сообщество не найдено")
	// ErrForbidden — действие доступно только создателю
	ErrForbidden = errors.New("Нет прав")
)
