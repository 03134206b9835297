// Package routing picks the outbound trunk for a call.
package routing

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrNoTrunks      = errors.New("routing: no eligible trunk")
	ErrInvalidTrunks = errors.New("routing: invalid trunk list")
)

type WeightedTrunk struct {
	// Template is a dial string with one %s for the number,
	// e.g. PJSIP/%s@carrier-a.
	Template string

	// Weight must be > 0.
	Weight int
}

// ParseTrunks reads "PJSIP/%s@a:3,PJSIP/%s@b:1". A missing weight means 1.
func ParseTrunks(s string) ([]WeightedTrunk, error) {
	var out []WeightedTrunk
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tmpl, weight := part, 1
		if i := strings.LastIndexByte(part, ':'); i > 0 {
			if w, err := strconv.Atoi(part[i+1:]); err == nil {
				tmpl, weight = part[:i], w
			}
		}
		if strings.Count(tmpl, "%s") != 1 {
			return nil, fmt.Errorf("%w: %q needs exactly one %%s", ErrInvalidTrunks, tmpl)
		}
		if weight <= 0 {
			return nil, fmt.Errorf("%w: %q has non-positive weight", ErrInvalidTrunks, part)
		}
		out = append(out, WeightedTrunk{Template: tmpl, Weight: weight})
	}
	if len(out) == 0 {
		return nil, ErrNoTrunks
	}
	return out, nil
}

// Selector does weighted random trunk selection. Safe for concurrent use.
type Selector struct {
	trunks []WeightedTrunk

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSelector(trunks []WeightedTrunk, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Selector{trunks: trunks, rng: rng}
}

// Route builds the dial endpoint for number.
func (s *Selector) Route(number string) (Decision, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return Decision{}, errors.New("routing: number required")
	}
	t, total, ok := s.pick()
	if !ok {
		return Decision{}, ErrNoTrunks
	}
	return Decision{
		Endpoint: fmt.Sprintf(t.Template, number),
		Trunk:    t.Template,
		Share:    float64(t.Weight) / float64(total),
	}, nil
}

func (s *Selector) pick() (WeightedTrunk, int, bool) {
	var total int
	for _, t := range s.trunks {
		if t.Weight <= 0 {
			continue
		}
		total += t.Weight
	}
	if total <= 0 {
		return WeightedTrunk{}, 0, false
	}

	s.mu.Lock()
	r := s.rng.Intn(total) // 0..total-1
	s.mu.Unlock()

	var acc int
	for _, t := range s.trunks {
		if t.Weight <= 0 {
			continue
		}
		acc += t.Weight
		if r < acc {
			return t, total, true
		}
	}
	return WeightedTrunk{}, 0, false
}
