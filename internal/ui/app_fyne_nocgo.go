//go:build fyne && !cgo

package ui

import "errors"

// errNoCgo is returned when the binary was built with -tags fyne but without cgo, which fyne's GL driver needs.
var errNoCgo = errors.New("the desktop window needs cgo for OpenGL: install a C toolchain and rebuild with " +
	"CGO_ENABLED=1 go build -tags fyne ./cmd/multiassistant (the headless 'multiassistant run' works without it)")

// Run always fails in this build.
func Run(_ Options) error { return errNoCgo }
