package walkforward

import (
	"fmt"
	"strconv"
	"strings"
)

// Spec is a walkforward window shape in months.
type Spec struct {
	Train int `yaml:"train" json:"train"`
	Test  int `yaml:"test" json:"test"`
	Step  int `yaml:"step" json:"step"`
}

func (s Spec) String() string {
	return fmt.Sprintf("train=%d,test=%d,step=%d", s.Train, s.Test, s.Step)
}

// Validate requires positive months and step == test, so that test windows
// neither overlap nor leave gaps.
func (s Spec) Validate() error {
	for _, f := range []struct {
		name string
		v    int
	}{{"train", s.Train}, {"test", s.Test}, {"step", s.Step}} {
		if f.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidSchedule, f.name, f.v)
		}
	}
	if s.Step != s.Test {
		return fmt.Errorf("%w: step (%d) must equal test (%d)", ErrInvalidSchedule, s.Step, s.Test)
	}
	return nil
}

// ParseSpec parses "train=3,test=1,step=1". All three keys are required.
func ParseSpec(s string) (Spec, error) {
	var (
		spec Spec
		seen = map[string]bool{}
	)
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return Spec{}, fmt.Errorf("%w: walkforward must be like 'train=3,test=1,step=1', got %q", ErrInvalidSchedule, s)
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidSchedule, k, v)
		}
		switch k = strings.ToLower(strings.TrimSpace(k)); k {
		case "train":
			spec.Train = n
		case "test":
			spec.Test = n
		case "step":
			spec.Step = n
		default:
			return Spec{}, fmt.Errorf("%w: unknown walkforward key %q", ErrInvalidSchedule, k)
		}
		seen[k] = true
	}
	if len(seen) != 3 {
		return Spec{}, fmt.Errorf("%w: walkforward must set train, test and step, got %q", ErrInvalidSchedule, s)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}
