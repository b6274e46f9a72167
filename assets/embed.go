// Package assets embeds the static data the server ships with:
// board descriptions (boards/*.json) and SQL migrations (sql/*.sql).
package assets

import (
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed boards/*.json sql/*.sql
var FS embed.FS

// Board returns the raw JSON description of the named board.
func Board(name string) ([]byte, error) {
	return FS.ReadFile(path.Join("boards", name+".json"))
}

// Boards lists the names of the embedded board descriptions.
func Boards() ([]string, error) {
	entries, err := fs.ReadDir(FS, "boards")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(out)
	return out, nil
}

// Migrations returns the SQL migration directory as its own filesystem.
func Migrations() fs.FS {
	sub, err := fs.Sub(FS, "sql")
	if err != nil {
		// The directory is embedded at compile time.
		panic(err)
	}
	return sub
}
