// Package program carries the metadata the MPC client needs about the
// pre-agreed program an MPC network runs: a stable identifier and the named
// input parameters it expects. Compilation and execution of programs happen
// elsewhere; this package deliberately knows nothing about bytecode.
package program

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Program identifies one deployed MPC program.
type Program struct {
	ID     string
	Inputs []string
}

// IDFromSource derives a stable program id from a source file path: the base
// name without extension plus a short content-independent digest of the
// path.
func IDFromSource(sourcePath string) string {
	base := filepath.Base(sourcePath)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	sum := sha256.Sum256([]byte(sourcePath))
	return base + "-" + hex.EncodeToString(sum[:4])
}

// New creates program metadata with the given expected input names.
func New(id string, inputs ...string) (*Program, error) {
	if id == "" {
		return nil, errors.New("program id is required")
	}
	return &Program{ID: id, Inputs: inputs}, nil
}

// Expects reports whether name is one of the program's declared inputs. A
// program with no declared inputs accepts any name.
func (p *Program) Expects(name string) bool {
	if len(p.Inputs) == 0 {
		return true
	}
	for _, in := range p.Inputs {
		if in == name {
			return true
		}
	}
	return false
}
