package bisimulation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stats describes one decomposition run.
type Stats struct {
	RunID         string
	States        int
	Transitions   int
	InitialBlocks int
	Blocks        int
	Iterations    int
	Splits        int

	InitialPartitionTime time.Duration
	RefinementTime       time.Duration
	ExtractionTime       time.Duration
	QuotientTime         time.Duration
}

// Decomposition computes the coarsest bisimulation of a model that refines the
// partition its options describe. It owns its partition; use it from one goroutine.
type Decomposition struct {
	model       Model
	options     Options
	labels      []string
	rewardName  string
	rewards     *RewardModel
	partition   *Partition
	data        blockData
	transitions *SparseMatrix

	refined  bool
	blocks   [][]int
	quotient *SparseModel
	stats    Stats

	// observe, if set, sees the partition after every splitter round.
	observe func(p *Partition)
}

// Build validates opts against model and computes the initial partition.
func Build(model Model, opts Options) (*Decomposition, error) {
	if model == nil {
		return nil, fmt.Errorf("no model: %w", ErrInvalidModel)
	}
	rewardName, rewards, err := opts.validate(model)
	if err != nil {
		return nil, err
	}

	d := &Decomposition{
		model:       model,
		options:     opts,
		labels:      opts.respectedLabels(model),
		rewardName:  rewardName,
		rewards:     rewards,
		transitions: model.Transitions(),
	}
	d.stats.RunID = uuid.NewString()
	d.stats.States = model.NumStates()
	d.stats.Transitions = model.NumTransitions()

	start := time.Now()
	if opts.MeasureDriven {
		d.partition, err = measurePartition(model, &d.options, rewards)
		if err != nil {
			return nil, err
		}
	} else {
		d.partition = labelPartition(model, d.labels, rewards, opts.Epsilon)
	}
	d.data = d.newBlockData()
	d.data.initialize(d.partition)
	d.stats.InitialPartitionTime = time.Since(start)
	d.stats.InitialBlocks = d.partition.Size()

	d.options.Logger.Printf("bisimulation %s: %s %v of %d states, initial partition has %d blocks",
		d.stats.RunID, opts.Type, model.Type(), d.stats.States, d.stats.InitialBlocks)
	return d, nil
}

func (d *Decomposition) newBlockData() blockData {
	n := d.model.NumStates()
	backward := d.transitions.Transpose()
	eps := d.options.Epsilon
	switch {
	case d.model.Type().IsNondeterministic():
		return newNondeterministicData(d.transitions, backward, n, eps)
	case d.options.Type == Weak && d.model.Type() == CTMC:
		return newLumpingData(backward, n, eps)
	case d.options.Type == Weak:
		return newWeakData(d.transitions, backward, n, eps)
	default:
		return newDeterministicData(backward, n, eps)
	}
}

// Refine splits blocks until the partition is stable, then extracts the blocks and,
// if configured, builds the quotient. Calling it again performs no split.
func (d *Decomposition) Refine() error {
	start := time.Now()
	r := newRefiner(d.partition, d.data, d.options.Workers)
	r.observe = d.observe
	r.run()
	d.stats.RefinementTime += time.Since(start)
	d.stats.Iterations += r.iterations
	d.stats.Splits += r.splits
	d.stats.Blocks = d.partition.Size()
	d.refined = true

	start = time.Now()
	d.blocks = d.partition.Extract()
	d.stats.ExtractionTime = time.Since(start)

	if d.options.BuildQuotient {
		start = time.Now()
		q, err := d.buildQuotient()
		if err != nil {
			return err
		}
		d.quotient = q
		d.stats.QuotientTime = time.Since(start)
	}

	d.options.Logger.Printf("bisimulation %s: %d states -> %d blocks, %d iterations, %d splits, refinement took %v",
		d.stats.RunID, d.stats.States, d.stats.Blocks, r.iterations, r.splits, d.stats.RefinementTime)
	return nil
}

// Quotient returns the quotient model built by Refine.
func (d *Decomposition) Quotient() (*SparseModel, error) {
	if !d.refined {
		return nil, fmt.Errorf("quotient requested before refinement: %w", ErrPrecondition)
	}
	if d.quotient == nil {
		return nil, fmt.Errorf("quotient was not built: %w", ErrPrecondition)
	}
	return d.quotient, nil
}

// Blocks returns the states of every block in ascending order, indexed by block id,
// which is also the quotient state.
func (d *Decomposition) Blocks() ([][]int, error) {
	if !d.refined {
		return nil, fmt.Errorf("blocks requested before refinement: %w", ErrPrecondition)
	}
	return d.blocks, nil
}

// Partition gives read access to the current partition.
func (d *Decomposition) Partition() *Partition {
	return d.partition
}

func (d *Decomposition) Options() Options {
	return d.options
}

func (d *Decomposition) Stats() Stats {
	return d.stats
}

// Minimize builds, refines and returns the quotient of model.
func Minimize(model Model, opts Options) (*SparseModel, error) {
	opts.BuildQuotient = true
	d, err := Build(model, opts)
	if err != nil {
		return nil, err
	}
	if err := d.Refine(); err != nil {
		return nil, err
	}
	return d.Quotient()
}
