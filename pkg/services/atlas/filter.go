package atlas

import (
	"encoding/json"
	"fmt"
	"log"

	"atlas-overwatch/pkg/spatial"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/paulmach/orb"
)

type FilterOptions struct {
	// Mission also searches loaded mission subscriptions.
	Mission bool
	// Limit caps the number of matches; zero means no cap.
	Limit int
}

// compileFilter parses a boolean query over a feature's wire form, e.g.
// `properties.type startsWith "a-h"` or `path == "/ops/"`.
func compileFilter(src string) (*vm.Program, error) {
	program, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidFilter, src, err)
	}
	return program, nil
}

// matches evaluates the program against one entity. Evaluation errors and
// non-boolean results count as no match for that entity only.
func (c *COT) matches(program *vm.Program) bool {
	raw, err := json.Marshal(c.Feature(false))
	if err != nil {
		return false
	}
	var env map[string]any
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}

	out, err := expr.Run(program, env)
	if err != nil {
		log.Printf("[Atlas] warning: filter failed on %s: %v", c.ID, err)
		return false
	}
	ok, isBool := out.(bool)
	return isBool && ok
}

// Filter returns entities matching a query expression in id order.
func (db *Database) Filter(src string, opts FilterOptions) ([]*COT, error) {
	program, err := compileFilter(src)
	if err != nil {
		return nil, err
	}

	var out []*COT
	for _, c := range db.candidates(opts.Mission) {
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
		if c.matches(program) {
			out = append(out, c)
		}
	}
	return out, nil
}

// FilterRemove removes every connection entity matching the expression.
func (db *Database) FilterRemove(src string) ([]*removal, error) {
	matched, err := db.Filter(src, FilterOptions{})
	if err != nil {
		return nil, err
	}
	var removed []*removal
	for _, c := range matched {
		if r := db.remove(c.ID); r != nil {
			removed = append(removed, r)
		}
	}
	return removed, nil
}

// Touching returns entities whose geometry lies wholly inside poly.
func (db *Database) Touching(poly orb.Polygon) []*COT {
	var out []*COT
	for _, c := range db.candidates(false) {
		if g := c.orb(); g != nil && spatial.Within(g, poly) {
			out = append(out, c)
		}
	}
	return out
}

// candidates lists current connection entities, then mission entities.
func (db *Database) candidates(mission bool) []*COT {
	var out []*COT
	for _, id := range db.currentIDs(false) {
		if c := db.Get(id); c != nil {
			out = append(out, c)
		}
	}
	if !mission {
		return out
	}
	for _, guid := range sortedKeys(db.subscriptions) {
		sub := db.subscriptions[guid]
		for _, id := range sortedKeys(sub.entities) {
			out = append(out, sub.entities[id])
		}
	}
	return out
}
