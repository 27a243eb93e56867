package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

var errUnparsed = errors.New("schedule definition was not parsed")

// Reference is the point a vested amount is computed at. Time schedules read At,
// milestone schedules read Achieved.
type Reference struct {
	At       time.Time
	Achieved []int
}

// VestedAmount splits a total allocation into the vested and unvested parts.
// Both are non-negative and always add up to the total.
type VestedAmount struct {
	Vested   *big.Int
	Unvested *big.Int
}

func (v VestedAmount) Total() *big.Int {
	return new(big.Int).Add(orZero(v.Vested), orZero(v.Unvested))
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}

type vestedAmountJSON struct {
	Vested   string `json:"vested"`
	Unvested string `json:"unvested"`
}

func (v VestedAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(vestedAmountJSON{
		Vested:   orZero(v.Vested).String(),
		Unvested: orZero(v.Unvested).String(),
	})
}

func (v *VestedAmount) UnmarshalJSON(data []byte) error {
	var raw vestedAmountJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	vested, err := ParseAmount(raw.Vested)
	if err != nil {
		return fmt.Errorf("vested: %w", err)
	}
	unvested, err := ParseAmount(raw.Unvested)
	if err != nil {
		return fmt.Errorf("unvested: %w", err)
	}
	v.Vested, v.Unvested = vested, unvested
	return nil
}

// ComputeVested returns how much of the schedule's total allocation is vested at ref.
func ComputeVested(def Definition, ref Reference) (VestedAmount, error) {
	var vested *big.Int
	switch def.kind {
	case KindTime:
		vested = def.vestedByTime(ref.At)
	case KindMilestone:
		v, err := def.vestedByMilestones(ref.Achieved)
		if err != nil {
			return VestedAmount{}, err
		}
		vested = v
	default:
		return VestedAmount{}, errUnparsed
	}

	return VestedAmount{
		Vested:   vested,
		Unvested: new(big.Int).Sub(def.total, vested),
	}, nil
}

func (d Definition) vestedByTime(at time.Time) *big.Int {
	cliffAt := d.start.Add(d.cliff)
	if at.Before(cliffAt) {
		return new(big.Int)
	}
	if !at.Before(d.end) {
		return new(big.Int).Set(d.total)
	}

	elapsed := at.Sub(d.start)
	if d.interval > 0 {
		elapsed = elapsed / d.interval * d.interval
	}

	if !d.cliffRelease.IsPositive() {
		return proportion(d.total, elapsed, d.end.Sub(d.start))
	}

	lump := decimal.NewFromBigInt(d.total, 0).Mul(d.cliffRelease).Shift(-2).Floor().BigInt()
	rest := new(big.Int).Sub(d.total, lump)
	sinceCliff := elapsed - d.cliff
	if sinceCliff < 0 {
		sinceCliff = 0
	}
	linear := d.end.Sub(cliffAt)
	if linear <= 0 {
		return new(big.Int).Set(d.total)
	}
	return lump.Add(lump, proportion(rest, sinceCliff, linear))
}

// proportion returns floor(amount * part / whole).
func proportion(amount *big.Int, part, whole time.Duration) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(part)))
	return out.Quo(out, big.NewInt(int64(whole)))
}

func (d Definition) vestedByMilestones(achieved []int) (*big.Int, error) {
	highest := 0
	for _, sequence := range achieved {
		if !d.HasMilestone(sequence) {
			return nil, fmt.Errorf("unknown milestone sequence %d", sequence)
		}
		highest = max(highest, sequence)
	}

	vested := new(big.Int)
	for _, m := range d.milestones {
		credited := m.sequence <= highest
		if d.independent {
			credited = slices.Contains(achieved, m.sequence)
		}
		if credited {
			vested.Add(vested, m.share)
		}
	}
	return vested, nil
}
