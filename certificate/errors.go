package certificate

import "fmt"

// TemplateLoadError reports template bytes that are not a usable PDF.
type TemplateLoadError struct {
	Err error
}

func (e *TemplateLoadError) Error() string { return fmt.Sprintf("load template: %v", e.Err) }
func (e *TemplateLoadError) Unwrap() error { return e.Err }

// FontEmbedError reports a font that could not be embedded. The renderer
// recovers from it by switching to the standard font.
type FontEmbedError struct {
	Font string
	Err  error
}

func (e *FontEmbedError) Error() string {
	return fmt.Sprintf("embed font %s: %v", e.Font, e.Err)
}
func (e *FontEmbedError) Unwrap() error { return e.Err }

// RenderError wraps any other failure while drawing or serializing.
type RenderError struct {
	Stage string
	Err   error
}

func (e *RenderError) Error() string { return fmt.Sprintf("render certificate (%s): %v", e.Stage, e.Err) }
func (e *RenderError) Unwrap() error { return e.Err }
