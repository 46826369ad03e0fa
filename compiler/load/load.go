// Package load compiles a model from source: it reads declaration files,
// parses and typechecks them, and lowers the result into the serialized
// system the request-time engine consumes.
package load

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/syssam/exo"
	"github.com/syssam/exo/compiler/ast"
	"github.com/syssam/exo/compiler/build"
	"github.com/syssam/exo/compiler/parser"
	"github.com/syssam/exo/compiler/typecheck"
	"github.com/syssam/exo/schema"
)

// Extension is the declaration file suffix.
const Extension = ".exo"

// Dir compiles every declaration file under the given directory.
func Dir(path string) (*schema.System, error) {
	var files []string
	err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(p) == Extension {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, exo.Validationf("cannot read model directory: %v", err)
	}
	if len(files) == 0 {
		return nil, exo.Validationf("no %s files under %s", Extension, path)
	}
	sort.Strings(files)

	parsed := make([]*ast.File, 0, len(files))
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, exo.Validationf("cannot read %s: %v", file, err)
		}
		f, err := parser.Parse(file, string(src))
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, f)
	}
	return compile(parsed)
}

// Source compiles a single in-memory declaration source.
func Source(name, src string) (*schema.System, error) {
	f, err := parser.Parse(name, src)
	if err != nil {
		return nil, err
	}
	return compile([]*ast.File{f})
}

func compile(files []*ast.File) (*schema.System, error) {
	env, err := typecheck.Check(files)
	if err != nil {
		return nil, err
	}
	return build.Build(env)
}
