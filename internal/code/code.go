package code

import (
	crypto_rand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	math_rand "math/rand"
	"regexp"
	"strings"
)

// Space is the number of distinct pairing codes.
const Space = 1_000_000

// Length is the length of a formatted code, separator included.
const Length = 7

var ErrInvalid = errors.New("invalid code, expected format DDD-DDD")

var (
	codeRe  = regexp.MustCompile(`^\d{3}-\d{3}$`)
	inputRe = regexp.MustCompile(`^(\d{3})[-\s]?(\d{3})$`)
)

// Generate draws a pairing code uniformly from the whole code space.
func Generate() (string, error) {
	rng, err := random()
	if err != nil {
		return "", fmt.Errorf("creating rng: %w", err)
	}
	return Format(rng.Intn(Space)), nil
}

// Format formats n as a code. n must be in [0, Space).
func Format(n int) string {
	return fmt.Sprintf("%03d-%03d", n/1000, n%1000)
}

func IsValid(code string) bool {
	return codeRe.MatchString(code)
}

// Normalize turns user input such as "123456", "123 456" or " 123-456 " into a code.
func Normalize(input string) (string, error) {
	m := inputRe.FindStringSubmatch(strings.TrimSpace(input))
	if m == nil {
		return "", ErrInvalid
	}
	return m[1] + "-" + m[2], nil
}

func random() (*math_rand.Rand, error) {
	var b [8]byte
	_, err := crypto_rand.Read(b[:])
	if err != nil {
		return nil, err
	}
	return math_rand.New(math_rand.NewSource(int64(binary.LittleEndian.Uint64(b[:])))), nil
}
