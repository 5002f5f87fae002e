// Package scaletab reads and writes the battle sprite scaling tables the
// game reads from a mod (table-summary-scale.txt and friends). Every table
// carries one line per Pokémon number, 1 through 1024, even when all
// values are the default; the game does not fall back for absent numbers.
package scaletab

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"badc0de.net/pkg/go-bullseye/catalog"
)

// Table is one scaling table: a default applied to every number plus
// per-number overrides.
type Table struct {
	Default   float64
	Overrides map[int]float64
}

// Scale returns the effective scale for a number.
func (t Table) Scale(n int) float64 {
	if s, ok := t.Overrides[n]; ok {
		return s
	}
	return t.Default
}

// Stock header the game ships its own tables with.
var headerLines = []string{
	";Table which determines scales for battle sprites.",
	";Lines starting with ; will be ignored",
	";Please only include values for overriden sprites!",
	";Each entry should be a separate line and contain ID=SCALE, like \"1=3\" without quotes.",
}

// Write emits the table in the game's format: `;`-prefixed header
// comments, then zero-padded `NNN=SCALE` for every number in ascending
// order.
func (t Table) Write(w io.Writer, title string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, ";%s\n", title)
	for _, h := range headerLines {
		fmt.Fprintln(bw, h)
	}
	for n := 1; n <= catalog.MaxNumber; n++ {
		fmt.Fprintf(bw, "%03d=%.2f\n", n, t.Scale(n))
	}
	return bw.Flush()
}

// WriteFile writes the table to path.
func (t Table) WriteFile(path, title string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "could not create scaling table %s", path)
	}
	if err := t.Write(f, title); err != nil {
		f.Close()
		return errors.Wrapf(err, "could not write scaling table %s", path)
	}
	return f.Close()
}

// Parse reads a table back. Comments and blank lines are tolerated; lines
// with a malformed number or a non-positive scale are errors. The returned
// table's Default is the most common value, with the rest as overrides, so
// a Write/Parse round trip preserves effective scales.
func Parse(r io.Reader) (Table, error) {
	scales := make(map[int]float64)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, ";") || strings.HasPrefix(text, "#") {
			continue
		}
		num, val, ok := strings.Cut(text, "=")
		if !ok {
			return Table{}, fmt.Errorf("could not parse scaling table line %d: %q", line, text)
		}
		n, err := strconv.Atoi(strings.TrimSpace(num))
		if err != nil || n < 1 || n > catalog.MaxNumber {
			return Table{}, fmt.Errorf("could not parse scaling table line %d: bad number %q", line, num)
		}
		s, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || s <= 0 {
			return Table{}, fmt.Errorf("could not parse scaling table line %d: bad scale %q", line, val)
		}
		scales[n] = s
	}
	if err := sc.Err(); err != nil {
		return Table{}, errors.Wrap(err, "could not read scaling table")
	}

	counts := make(map[float64]int)
	for _, s := range scales {
		counts[s]++
	}
	var def float64
	best := -1
	for s, c := range counts {
		if c > best {
			def, best = s, c
		}
	}

	t := Table{Default: def, Overrides: make(map[int]float64)}
	for n, s := range scales {
		if s != def {
			t.Overrides[n] = s
		}
	}
	return t, nil
}
