package compiler

import (
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadManifests compiles every sale declared in path, which may be a
// single .cue file or a directory holding one CUE package. Manifests are
// returned sorted by name.
func LoadManifests(path string) ([]Manifest, error) {
	ctx := cuecontext.New()

	value, err := buildValue(ctx, path)
	if err != nil {
		return nil, err
	}

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("sale schema: %w", err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	sales := unified.LookupPath(cue.ParsePath("sale"))
	if !sales.Exists() {
		return nil, &CompileError{Field: "sale", Message: "no sales declared", Pos: value.Pos()}
	}

	iter, err := sales.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var manifests []Manifest
	for iter.Next() {
		m, err := CompileManifest(iter.Value())
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, *m)
	}
	if len(manifests) == 0 {
		return nil, &CompileError{Field: "sale", Message: "no sales declared", Pos: sales.Pos()}
	}

	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].Name < manifests[j].Name
	})
	return manifests, nil
}

// LoadManifest loads path and returns the sale called name, or the only
// sale when name is empty.
func LoadManifest(path, name string) (*Manifest, error) {
	manifests, err := LoadManifests(path)
	if err != nil {
		return nil, err
	}

	if name == "" {
		if len(manifests) != 1 {
			return nil, fmt.Errorf("%s declares %d sales; choose one by name", path, len(manifests))
		}
		return &manifests[0], nil
	}
	for i := range manifests {
		if manifests[i].Name == name {
			return &manifests[i], nil
		}
	}
	return nil, fmt.Errorf("sale %q not found in %s", name, path)
}

func buildValue(ctx *cue.Context, path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("manifest %s: %w", path, err)
	}

	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return cue.Value{}, fmt.Errorf("manifest %s: %w", path, err)
		}
		v := ctx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return cue.Value{}, formatCUEError(err)
		}
		return v, nil
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("manifest %s: no CUE instances loaded", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("manifest %s: loading CUE files: %w", path, inst.Err)
	}

	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}
