// Entrypoint for the Cobra CLI; actual command wiring lives in cmd/root.go.

package main

import (
	"github.com/riskmodels/catagg/cmd"
)

func main() {
	cmd.Execute()
}
