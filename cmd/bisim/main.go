package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"

	"github.com/geange/bisimulation"
	"github.com/geange/bisimulation/explicit"
	"github.com/geange/bisimulation/logic"
)

var (
	weak       bool
	labels     string
	eventually string
	rewFile    string
	workers    int
	verbose    bool
)

func minimizeCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       minimize,
		UsageLine: "minimize [options] model.tra model.lab",
		Short:     "computes the bisimulation quotient of an explicit model",
		Long: `
computes the bisimulation quotient of an explicit model and prints its size

	$ bisim minimize [-weak] [-labels a,b] [-eventually L] [-rew model.rew] model.tra model.lab

`,
		Flag: *flag.NewFlagSet("minimize", flag.ExitOnError),
	}
	cmd.Flag.BoolVar(&weak, "weak", false, "Weak instead of strong bisimulation")
	cmd.Flag.StringVar(&labels, "labels", "", "Comma separated labels to respect (default all)")
	cmd.Flag.StringVar(&eventually, "eventually", "", "Preserve P=? [F label], seeding the partition measure-driven")
	cmd.Flag.StringVar(&rewFile, "rew", "", "State reward file")
	cmd.Flag.IntVar(&workers, "workers", bisimulation.DefaultWorkers, "Signature workers")
	cmd.Flag.BoolVar(&verbose, "v", false, "Log progress to stderr")
	return cmd
}

func minimize(cmd *commander.Command, args []string) error {
	if len(args) != 2 {
		cmd.Usage()
		return fmt.Errorf("want a transition and a label file, got %d arguments", len(args))
	}
	if workers < 1 {
		return fmt.Errorf("-workers must be at least 1, got %d", workers)
	}
	model, err := explicit.LoadModel(args[0], args[1], rewFile)
	if err != nil {
		return err
	}

	opts := []bisimulation.Option{bisimulation.WithWorkers(workers)}
	if weak {
		opts = append(opts, bisimulation.WithType(bisimulation.Weak))
	}
	if labels != "" {
		opts = append(opts, bisimulation.WithRespectedLabels(strings.Split(labels, ",")...))
	}
	if verbose {
		opts = append(opts, bisimulation.WithLogger(log.New(os.Stderr, "", log.LstdFlags)))
	}

	var options bisimulation.Options
	if eventually != "" {
		f := &logic.ProbabilityOperator{Sub: &logic.Eventually{Sub: logic.Label(eventually)}}
		options, err = bisimulation.OptionsForFormula(model, f, opts...)
		if err != nil {
			return err
		}
	} else {
		options = bisimulation.OptionsForModel(model, opts...)
	}

	d, err := bisimulation.Build(model, options)
	if err != nil {
		return err
	}
	if err := d.Refine(); err != nil {
		return err
	}
	quotient, err := d.Quotient()
	if err != nil {
		return err
	}

	stats := d.Stats()
	fmt.Printf("model:    %v\n", model)
	fmt.Printf("quotient: %v\n", quotient)
	fmt.Printf("run %s: %d iterations, %d splits, initial partition %v, refinement %v, quotient %v\n",
		stats.RunID, stats.Iterations, stats.Splits, stats.InitialPartitionTime, stats.RefinementTime, stats.QuotientTime)
	return nil
}

func main() {
	cmd := &commander.Command{
		UsageLine:   os.Args[0],
		Short:       "bisimulation minimization of DTMCs, CTMCs and MDPs",
		Subcommands: []*commander.Command{minimizeCmd()},
		Flag:        *flag.NewFlagSet("bisim", flag.ExitOnError),
	}
	if err := cmd.Dispatch(os.Args[1:]); err != nil {
		fmt.Printf("**err**: %v\n", err)
		os.Exit(1)
	}
}
