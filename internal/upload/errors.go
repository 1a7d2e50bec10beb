package upload

import "errors"

var (
	ErrInvalidUpload         = errors.New("invalid upload")
	ErrDisallowedType        = errors.New("file type not allowed")
	ErrExtensionUndetectable = errors.New("unable to determine file extension")
	ErrNotFound              = errors.New("file not found")
	ErrAlreadyDeleted        = errors.New("file already deleted")
)
