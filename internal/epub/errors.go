package epub

import "errors"

var (
	ErrArchiveRead       = errors.New("archive cannot be read as ZIP")
	ErrNoPackageDocument = errors.New("package document not found")
	ErrEmptyManifest     = errors.New("package document has an empty manifest")
	ErrUnreadableContent = errors.New("content document missing or not markup")
	ErrTraversalRejected = errors.New("reference escapes the archive root")
	ErrExternalReference = errors.New("reference points outside the archive")
	ErrFileNotFound      = errors.New("file not found in archive")
	ErrEntryTooLarge     = errors.New("archive entry exceeds size limit")
)
