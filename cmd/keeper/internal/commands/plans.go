package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/wolfeidau/projectkeeper/internal/capability"
)

type PlansCmd struct {
	File string `arg:"" help:"YAML plan file to validate" type:"existingfile"`
}

func (p *PlansCmd) Run(ctx context.Context, globals *Globals) error {
	plans, err := capability.LoadPlans(p.File)
	if err != nil {
		return fmt.Errorf("invalid plan file: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLAN\tDEFAULT\tTYPES")
	for _, name := range plans.Names() {
		fmt.Fprintf(w, "%s\t%t\t%v\n", name, name == plans.Default(), plans.Types(name))
	}

	return w.Flush()
}
