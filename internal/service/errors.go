// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrInvalidRole — некорректная роль членства.
	ErrInvalidRole = errors.New("некорректная роль: допустимые значения — owner, member")
	// ErrForbidden — операция запрещена для текущего пользователя.
	ErrForbidden = errors.New("операция запрещена")
)
