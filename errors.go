package lgrbus

import "github.com/abyssdigger/lgrbus/internal/apperrors"

// Sentinel errors, to be matched with errors.Is. Every error lgrbus returns
// for these conditions carries the same code and a more specific message.
var (
	ErrDuplicateWriter = apperrors.NewAppError(apperrors.ErrConfigDuplicateWriter, "writer name is bound to another writer instance", nil)
	ErrInvalidLevel    = apperrors.NewAppError(apperrors.ErrConfigInvalidLevel, "invalid level definition", nil)
	ErrInvalidLocation = apperrors.NewAppError(apperrors.ErrConfigInvalidLocation, "invalid location argument", nil)
	ErrNegativeSkip    = apperrors.NewAppError(apperrors.ErrConfigNegativeSkip, "call stack lines to skip must not be negative", nil)
	ErrUnresolvedLevel = apperrors.NewAppError(apperrors.ErrLevelUnresolved, "level is not registered", nil)
	ErrBusShutDown     = apperrors.NewAppError(apperrors.ErrBusShutDown, "bus is shut down", nil)
	ErrDecode          = apperrors.NewAppError(apperrors.ErrSerdeDecode, "cannot decode serialized event", nil)
	ErrEncode          = apperrors.NewAppError(apperrors.ErrSerdeEncode, "cannot encode event", nil)
)
