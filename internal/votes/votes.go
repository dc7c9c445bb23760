// Package votes renders ballot choices for every supported voting system.
package votes

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Type is the voting system a proposal uses. The set is closed: every
// switch over Type handles each value.
type Type int

const (
	SingleChoice Type = iota + 1
	Weighted
	Approval
	Basic
	Quadratic
	RankedChoice
)

var ErrUnknownType = errors.New("unknown vote type")

var names = map[Type]string{
	SingleChoice: "single-choice",
	Weighted:     "weighted",
	Approval:     "approval",
	Basic:        "basic",
	Quadratic:    "quadratic",
	RankedChoice: "ranked-choice",
}

func ParseType(s string) (Type, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	for t, name := range names {
		if name == normalized {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

func (t Type) String() string {
	if name, ok := names[t]; ok {
		return name
	}
	return "unknown"
}

func (t Type) MarshalText() ([]byte, error) {
	if _, ok := names[t]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
	return []byte(t.String()), nil
}

// Render describes a ballot in words. Choice indexes are 1-based into
// choices.
func (t Type) Render(choice json.RawMessage, choices []string) (string, error) {
	switch t {
	case SingleChoice, Basic:
		var n int
		if err := json.Unmarshal(choice, &n); err != nil {
			return "", fmt.Errorf("decode %s choice: %w", t, err)
		}
		return label(choices, n), nil
	case Approval:
		var picks []int
		if err := json.Unmarshal(choice, &picks); err != nil {
			return "", fmt.Errorf("decode %s choice: %w", t, err)
		}
		labels := make([]string, 0, len(picks))
		for _, n := range picks {
			labels = append(labels, label(choices, n))
		}
		return strings.Join(labels, ", "), nil
	case RankedChoice:
		var ranking []int
		if err := json.Unmarshal(choice, &ranking); err != nil {
			return "", fmt.Errorf("decode %s choice: %w", t, err)
		}
		labels := make([]string, 0, len(ranking))
		for i, n := range ranking {
			labels = append(labels, fmt.Sprintf("(%s) %s", ordinal(i+1), label(choices, n)))
		}
		return strings.Join(labels, ", "), nil
	case Weighted, Quadratic:
		var weights map[string]float64
		if err := json.Unmarshal(choice, &weights); err != nil {
			return "", fmt.Errorf("decode %s choice: %w", t, err)
		}
		return renderWeights(weights, choices), nil
	}
	return "", fmt.Errorf("%w: %d", ErrUnknownType, int(t))
}

func renderWeights(weights map[string]float64, choices []string) string {
	type share struct {
		index  int
		weight float64
	}
	var (
		shares []share
		total  float64
	)
	for key, w := range weights {
		n, err := strconv.Atoi(key)
		if err != nil || w <= 0 {
			continue
		}
		shares = append(shares, share{index: n, weight: w})
		total += w
	}
	if total == 0 {
		return ""
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].index < shares[j].index })
	parts := make([]string, 0, len(shares))
	for _, s := range shares {
		pct := math.Round(s.weight / total * 100)
		parts = append(parts, fmt.Sprintf("%d%% for %s", int(pct), label(choices, s.index)))
	}
	return strings.Join(parts, ", ")
}

func label(choices []string, n int) string {
	if n < 1 || n > len(choices) {
		return "Unknown choice"
	}
	return choices[n-1]
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return strconv.Itoa(n) + suffix
}
