package user

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	patternGridSize    = 3
	patternSensitivity = 30.0 // proximity threshold around a dot centre, in canvas units
	PatternMinDots     = 4
)

var errInvalidPattern = errors.New("invalid pattern")

// Point is a pointer position on the pattern canvas, relative to its top-left corner.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// dotCenter returns the centre of dot `i` (0-based) on a square canvas of `size` units.
func dotCenter(i int, size float64) Point {
	spacing := size / (patternGridSize + 1)
	col := i % patternGridSize
	row := i / patternGridSize
	return Point{X: float64(col+1) * spacing, Y: float64(row+1) * spacing}
}

// TracePattern maps a pointer trace on a square canvas to the sequence of dots (1..9) it went through.
// Dots already in the sequence are not visited twice.
func TracePattern(points []Point, size float64) []int {
	if size <= 0 {
		return nil
	}
	visited := make(map[int]bool, patternGridSize*patternGridSize)
	path := make([]int, 0, patternGridSize*patternGridSize)
	for _, p := range points {
		for i := 0; i < patternGridSize*patternGridSize; i++ {
			dot := i + 1
			if visited[dot] {
				continue
			}
			c := dotCenter(i, size)
			if math.Hypot(p.X-c.X, p.Y-c.Y) < patternSensitivity {
				visited[dot] = true
				path = append(path, dot)
			}
		}
	}
	return path
}

// FormatPattern formats a dot sequence as "1-5-9".
func FormatPattern(dots []int) string {
	parts := make([]string, 0, len(dots))
	for _, d := range dots {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, "-")
}

// ParsePattern parses a "1-5-9" pattern. Dots must be distinct, in 1..9, and at least PatternMinDots.
func ParsePattern(s string) ([]int, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) < PatternMinDots || len(parts) > patternGridSize*patternGridSize {
		return nil, errInvalidPattern
	}
	seen := make(map[int]bool, len(parts))
	dots := make([]int, 0, len(parts))
	for _, part := range parts {
		d, err := strconv.Atoi(part)
		if err != nil || d < 1 || d > patternGridSize*patternGridSize || seen[d] {
			return nil, errInvalidPattern
		}
		seen[d] = true
		dots = append(dots, d)
	}
	return dots, nil
}

// SetPattern hashes and sets the user's pattern lock.
func (u *User) SetPattern(pattern string) error {
	dots, err := ParsePattern(pattern)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(FormatPattern(dots)), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PatternHash = hash
	return nil
}

func (u *User) CheckPattern(pattern string) error {
	if !u.HasPattern() {
		return errInvalidPattern
	}
	dots, err := ParsePattern(pattern)
	if err != nil {
		return err
	}
	return bcrypt.CompareHashAndPassword(u.PatternHash, []byte(FormatPattern(dots)))
}
