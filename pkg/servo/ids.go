package servo

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// IDRange is an inclusive range of motor IDs to sweep.
type IDRange struct {
	First int
	Last  int
}

var (
	// DefaultScanRange is the sweep used when the caller does not choose one.
	DefaultScanRange = IDRange{First: 1, Last: 29}

	// FullScanRange covers every addressable ID.
	FullScanRange = IDRange{First: AddressRange.Min, Last: AddressRange.Max}
)

// Validate checks that the range is ascending and addressable.
func (r IDRange) Validate() error {
	if r.First > r.Last {
		return fmt.Errorf("%w: range %s is reversed", ErrInvalidID, r)
	}
	if err := ValidateID(r.First); err != nil {
		return err
	}
	return ValidateID(r.Last)
}

// Len returns the number of IDs in the range.
func (r IDRange) Len() int {
	if r.First > r.Last {
		return 0
	}
	return r.Last - r.First + 1
}

// IDs returns the IDs of the range in ascending order.
func (r IDRange) IDs() []int {
	ids := make([]int, 0, r.Len())
	for id := r.First; id <= r.Last; id++ {
		ids = append(ids, id)
	}
	return ids
}

func (r IDRange) String() string {
	return fmt.Sprintf("%d-%d", r.First, r.Last)
}

// ParseIDs parses a comma separated list of IDs and ID ranges such as
// "1-6,12". The result is sorted and free of duplicates.
func ParseIDs(s string) ([]int, error) {
	var ids []int
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		first, last, isRange := strings.Cut(part, "-")
		lo, err := strconv.Atoi(strings.TrimSpace(first))
		if err != nil {
			return nil, fmt.Errorf("parse id %q: %w", part, err)
		}
		hi := lo
		if isRange {
			if hi, err = strconv.Atoi(strings.TrimSpace(last)); err != nil {
				return nil, fmt.Errorf("parse id %q: %w", part, err)
			}
		}

		r := IDRange{First: lo, Last: hi}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		ids = append(ids, r.IDs()...)
	}

	slices.Sort(ids)
	return slices.Compact(ids), nil
}
