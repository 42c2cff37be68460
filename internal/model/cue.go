package model

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// document is the shape of the CUE model package.
type document struct {
	Apps  map[string]*App  `json:"apps"`
	Pages map[string]*Page `json:"pages"`
}

// Load builds the CUE package in dir and returns the linked catalog.
func Load(dir string) (*Catalog, error) {
	ctx := cuecontext.New()
	insts := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(insts) == 0 {
		return nil, fmt.Errorf("no CUE instances found in %s", dir)
	}
	if insts[0].Err != nil {
		return nil, fmt.Errorf("loading model CUE: %w", insts[0].Err)
	}
	val := ctx.BuildInstance(insts[0])
	if val.Err() != nil {
		return nil, fmt.Errorf("building model CUE value: %w", val.Err())
	}
	return decode(val)
}

// Parse compiles a single CUE source into a catalog.
func Parse(src []byte) (*Catalog, error) {
	val := cuecontext.New().CompileBytes(src)
	if val.Err() != nil {
		return nil, fmt.Errorf("compiling model CUE: %w", val.Err())
	}
	return decode(val)
}

func decode(val cue.Value) (*Catalog, error) {
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating model: %w", err)
	}
	var doc document
	if err := val.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding model: %w", err)
	}
	c := &Catalog{Apps: doc.Apps, Pages: doc.Pages}
	if c.Apps == nil {
		c.Apps = map[string]*App{}
	}
	if c.Pages == nil {
		c.Pages = map[string]*Page{}
	}
	if err := c.link(); err != nil {
		return nil, err
	}
	return c, nil
}
