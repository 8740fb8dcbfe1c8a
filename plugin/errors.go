package plugin

import "errors"

var (
	ErrMissingName           = errors.New("plugin: manifest needs a name")
	ErrMissingDescription    = errors.New("plugin: manifest needs a description")
	ErrUnsupportedSignature  = errors.New("plugin: params must be [], [args] or [sender, args]")
	ErrNoOutput              = errors.New("plugin: manifest needs a reply or a broadcast template")
	ErrMultipleDocuments     = errors.New("plugin: manifest must contain exactly one document")
	ErrUnsupportedURLScheme  = errors.New("plugin: only http and https manifests can be fetched")
	ErrManifestTooLarge      = errors.New("plugin: fetched manifest exceeds the size limit")
	ErrUnexpectedFetchStatus = errors.New("plugin: unexpected response status")
)
