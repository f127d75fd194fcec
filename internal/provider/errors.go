package provider

import "fmt"

// NavigationError means the page could not be fetched or rendered.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation failed for %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// NotFoundError means the selector matched nothing on the rendered page.
type NotFoundError struct {
	Selector string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("selector not found: %s", e.Selector)
}

// RecognitionError means OCR failed on the supplied image.
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition failed: %v", e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// UnavailableError means the provider cannot serve calls at all (missing
// credentials, service down). Semantic unavailability degrades hybrid and
// semantic strategies to fuzzy instead of failing the row.
type UnavailableError struct {
	Kind string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s provider unavailable: %v", e.Kind, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// StorageError means the evidence sink could not persist artifacts.
// Always row-local and non-fatal.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("evidence storage failed: %v", e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
