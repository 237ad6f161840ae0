package routine

import "errors"

var (
	ErrInvalidInterval        = errors.New("repeat interval must be a positive number of days")
	ErrEmptyWeekdays          = errors.New("weekday set is empty")
	ErrInvalidWeekday         = errors.New("weekday must be between 1 (Monday) and 7 (Sunday)")
	ErrMissingDate            = errors.New("one-off routine has no date")
	ErrMissingAnchor          = errors.New("interval routine has no anchor date")
	ErrUnknownSplit           = errors.New("unknown holiday split")
	ErrMissingRepeat          = errors.New("routine has no repeat rule")
	ErrUnsupportedCombination = errors.New("holiday split is not supported for this repeat kind")
)
