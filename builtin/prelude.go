package builtin

import (
	_ "embed"

	"obi.dev/obi"
)

//go:embed prelude.obi
var prelude string

// LoadPrelude evaluates the language-level helpers into the global
// environment.
func LoadPrelude(ctx *obi.Context) error {
	_, err := ctx.Run(prelude, "prelude.obi")
	return err
}
