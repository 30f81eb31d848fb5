// Package web embeds the HTML templates and static assets, so the server
// binary has no files to ship alongside it.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html
var Templates embed.FS

//go:embed static
var static embed.FS

// Static returns the assets rooted at static/, as served under /static/.
func Static() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		// static is a literal directory in this package.
		panic(err)
	}
	return sub
}
