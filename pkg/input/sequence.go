package input

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var ErrNoTrailingDigits = errors.New("example filename must end with a number")

// SplitExample splits name into the prefix and its longest trailing run of
// decimal digits.
func SplitExample(name string) (prefix, digits string, err error) {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) {
		return "", "", fmt.Errorf("%w: %q", ErrNoTrailingDigits, name)
	}
	return name[:i], name[i:], nil
}

// Sequence generates n filenames continuing the trailing number of example,
// zero padded to the width of that number. Numbers that outgrow the width are
// written in full, never truncated.
func Sequence(example string, n int) ([]string, error) {
	prefix, digits, err := SplitExample(strings.TrimSpace(example))
	if err != nil {
		return nil, err
	}

	start, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoTrailingDigits, example)
	}

	width := len(digits)
	names := make([]string, n)
	num := new(big.Int).Set(start)
	one := big.NewInt(1)

	for i := 0; i < n; i++ {
		names[i] = prefix + zeroPad(num.String(), width)
		num.Add(num, one)
	}
	return names, nil
}

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
