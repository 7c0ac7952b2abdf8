package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	day         = 24 * time.Hour
	maxDuration = time.Duration(math.MaxInt64)
)

// Lifetime is a token lifetime read from the environment. It accepts Go
// duration strings ("1h", "90m"), a leading day count ("7d", "1d12h") and
// bare integers, which are seconds.
type Lifetime time.Duration

// Duration converts l to a time.Duration.
func (l Lifetime) Duration() time.Duration { return time.Duration(l) }

func (l *Lifetime) UnmarshalText(text []byte) error {
	d, err := ParseLifetime(string(text))
	if err != nil {
		return err
	}
	*l = Lifetime(d)
	return nil
}

func (l Lifetime) String() string { return time.Duration(l).String() }

// ParseLifetime parses s into a duration.
func ParseLifetime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("lifetime: empty value")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 || n > int64(maxDuration/time.Second) {
			return 0, fmt.Errorf("lifetime %q: out of range", s)
		}
		return time.Duration(n) * time.Second, nil
	}

	var total time.Duration
	if i := strings.IndexByte(s, 'd'); i > 0 {
		days, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("lifetime %q: invalid day count", s)
		}
		if days < 0 || days > int64(maxDuration/day) {
			return 0, fmt.Errorf("lifetime %q: out of range", s)
		}
		total = time.Duration(days) * day
		s = s[i+1:]
		if s == "" {
			return total, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("lifetime %q: %w", s, err)
	}
	if d > maxDuration-total {
		return 0, fmt.Errorf("lifetime %q: out of range", s)
	}
	return total + d, nil
}
