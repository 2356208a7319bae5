// Package explicit reads models in the explicit text format: a transition file
// (.tra), a label file (.lab) and optionally a state reward file (.rew).
//
// A transition file may start with the model type (dtmc, ctmc or mdp) and with
// "STATES n" and "TRANSITIONS m" lines. Every other non-empty line is
// "source target value" for DTMCs and CTMCs and "source choice target value" for
// MDPs. A label file declares its labels between #DECLARATION and #END and then lists
// "state label..." lines. A reward file lists "state value" lines. Lines starting
// with "//" or "%" are comments.
package explicit

import (
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/geange/bisimulation"
)

// ErrSyntax reports malformed input; it is wrapped with the file kind and line.
var ErrSyntax = errors.New("explicit: syntax error")

// DefaultRewardModel names the reward model read from a .rew file.
const DefaultRewardModel = ""

type entry struct {
	source, choice, target int
	value                  float64
}

// ReadModel reads a model with type taken from the transition header, DTMC if absent.
// rew may be nil.
func ReadModel(tra, lab, rew io.Reader) (*bisimulation.SparseModel, error) {
	modelType, numStates, entries, err := readTransitions(tra)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		numStates = max(numStates, e.source+1, e.target+1)
	}

	labeling, err := readLabels(lab, numStates)
	if err != nil {
		return nil, err
	}

	rewardModels := make(map[string]*bisimulation.RewardModel)
	if rew != nil {
		rewards, err := readRewards(rew, numStates)
		if err != nil {
			return nil, err
		}
		rewardModels[DefaultRewardModel] = &bisimulation.RewardModel{StateRewards: rewards}
	}

	matrix, err := buildMatrix(modelType, numStates, entries)
	if err != nil {
		return nil, err
	}
	return bisimulation.NewSparseModel(modelType, matrix, labeling, rewardModels)
}

// LoadModel opens the given files and reads them with ReadModel. rewPath may be empty.
func LoadModel(traPath, labPath, rewPath string) (*bisimulation.SparseModel, error) {
	tra, err := os.Open(traPath)
	if err != nil {
		return nil, err
	}
	defer tra.Close()
	lab, err := os.Open(labPath)
	if err != nil {
		return nil, err
	}
	defer lab.Close()
	if rewPath == "" {
		return ReadModel(tra, lab, nil)
	}
	rew, err := os.Open(rewPath)
	if err != nil {
		return nil, err
	}
	defer rew.Close()
	return ReadModel(tra, lab, rew)
}

func buildMatrix(modelType bisimulation.ModelType, numStates int, entries []entry) (*bisimulation.SparseMatrix, error) {
	slices.SortStableFunc(entries, func(a, b entry) int {
		if c := cmp.Compare(a.source, b.source); c != 0 {
			return c
		}
		return cmp.Compare(a.choice, b.choice)
	})

	if !modelType.IsNondeterministic() {
		builder := bisimulation.NewSparseMatrixBuilder(numStates, len(entries), false)
		for _, e := range entries {
			if err := builder.AddNextValue(e.source, e.target, e.value); err != nil {
				return nil, err
			}
		}
		return builder.Build(numStates, numStates, numStates)
	}

	builder := bisimulation.NewSparseMatrixBuilder(numStates, len(entries), true)
	row, lastSource, lastChoice := -1, -1, -1
	for _, e := range entries {
		if e.source != lastSource || e.choice != lastChoice {
			row++
			// Open the groups of this state and of any state without choices.
			for lastSource < e.source {
				lastSource++
				if err := builder.NewRowGroup(row); err != nil {
					return nil, err
				}
			}
			lastSource, lastChoice = e.source, e.choice
		}
		if err := builder.AddNextValue(row, e.target, e.value); err != nil {
			return nil, err
		}
	}
	for lastSource+1 < numStates {
		lastSource++
		if err := builder.NewRowGroup(row + 1); err != nil {
			return nil, err
		}
	}
	return builder.Build(row+1, numStates, numStates)
}

func readTransitions(r io.Reader) (bisimulation.ModelType, int, []entry, error) {
	modelType := bisimulation.DTMC
	numStates := 0
	var entries []entry
	fields := 3

	err := scanLines(r, func(line int, words []string) error {
		switch strings.ToLower(words[0]) {
		case "dtmc":
			modelType, fields = bisimulation.DTMC, 3
			return nil
		case "ctmc":
			modelType, fields = bisimulation.CTMC, 3
			return nil
		case "mdp":
			modelType, fields = bisimulation.MDP, 4
			return nil
		case "states":
			if len(words) != 2 {
				return syntaxError("tra", line, "STATES takes one count")
			}
			n, err := parseIndex(words[1])
			if err != nil {
				return syntaxError("tra", line, err.Error())
			}
			numStates = n
			return nil
		case "transitions", "choices":
			return nil
		}

		if len(words) != fields {
			return syntaxError("tra", line, fmt.Sprintf("want %d fields, got %d", fields, len(words)))
		}
		ints := make([]int, fields-1)
		for i := range ints {
			n, err := parseIndex(words[i])
			if err != nil {
				return syntaxError("tra", line, err.Error())
			}
			ints[i] = n
		}
		value, err := strconv.ParseFloat(words[fields-1], 64)
		if err != nil {
			return syntaxError("tra", line, err.Error())
		}
		e := entry{source: ints[0], target: ints[len(ints)-1], value: value}
		if fields == 4 {
			e.choice = ints[1]
		}
		entries = append(entries, e)
		return nil
	})
	return modelType, numStates, entries, err
}

func readLabels(r io.Reader, numStates int) (*bisimulation.Labeling, error) {
	labeling := bisimulation.NewLabeling(numStates)
	declaring := false
	err := scanLines(r, func(line int, words []string) error {
		switch words[0] {
		case "#DECLARATION":
			declaring = true
			return nil
		case "#END":
			declaring = false
			return nil
		}
		if declaring {
			for _, w := range words {
				if err := labeling.AddLabel(w); err != nil {
					return syntaxError("lab", line, err.Error())
				}
			}
			return nil
		}
		state, err := parseIndex(strings.TrimSuffix(words[0], ":"))
		if err != nil {
			return syntaxError("lab", line, err.Error())
		}
		for _, w := range words[1:] {
			if err := labeling.AddLabelToState(w, state); err != nil {
				return syntaxError("lab", line, err.Error())
			}
		}
		return nil
	})
	return labeling, err
}

func readRewards(r io.Reader, numStates int) ([]float64, error) {
	rewards := make([]float64, numStates)
	err := scanLines(r, func(line int, words []string) error {
		if len(words) != 2 {
			return syntaxError("rew", line, fmt.Sprintf("want 2 fields, got %d", len(words)))
		}
		state, err := parseIndex(words[0])
		if err != nil {
			return syntaxError("rew", line, err.Error())
		}
		if state >= numStates {
			return syntaxError("rew", line, fmt.Sprintf("state %d beyond %d states", state, numStates))
		}
		value, err := strconv.ParseFloat(words[1], 64)
		if err != nil {
			return syntaxError("rew", line, err.Error())
		}
		rewards[state] = value
		return nil
	})
	return rewards, err
}

// scanLines calls fn with the words of every line that is neither empty nor a
// comment. Lines are numbered from one.
func scanLines(r io.Reader, fn func(line int, words []string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<24)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "//") || strings.HasPrefix(text, "%") {
			continue
		}
		if err := fn(line, strings.Fields(text)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative index %d", n)
	}
	return n, nil
}

func syntaxError(kind string, line int, msg string) error {
	return fmt.Errorf("%s line %d: %s: %w", kind, line, msg, ErrSyntax)
}
