package services

import "errors"

// Ошибки разбора входной выгрузки и генерации отчета.
var (
	// ErrNoInput возвращается, когда не задан путь к выгрузке.
	ErrNoInput = errors.New("no input file configured")

	// ErrMissingColumn возвращается, если в заголовке нет обязательной колонки.
	ErrMissingColumn = errors.New("missing column")

	// ErrInvalidDate возвращается для даты, не подходящей под формат.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidHours возвращается для нечислового значения часов.
	ErrInvalidHours = errors.New("invalid hours")

	// ErrNegativeDuration возвращается, если дата окончания раньше даты начала.
	ErrNegativeDuration = errors.New("end date before start date")

	// ErrUnknownKind возвращается для неизвестного вида отчета.
	ErrUnknownKind = errors.New("unknown report kind")
)

// IsInputError сообщает, вызвана ли ошибка некорректной выгрузкой.
func IsInputError(err error) bool {
	return errors.Is(err, ErrMissingColumn) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidHours) ||
		errors.Is(err, ErrNegativeDuration)
}
