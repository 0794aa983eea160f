package program

import (
	"fmt"
	"sort"

	"dario.cat/mergo"
	"github.com/samber/lo"

	"github.com/cinit-dev/cinit/internal/cronexpr"
)

// RawProgram is one partial program fragment as decoded from a single YAML
// "programs" list entry, before merging (§4.2). Scalar "at most one
// occurrence" fields are pointers so merge() can tell "not set" apart from
// "set to the zero value".
type RawProgram struct {
	Name string

	Path    *string
	Workdir *string
	UID     *uint32
	GID     *uint32
	User    *string // resolved to UID by internal/config before Merge runs
	Group   *string // resolved to GID by internal/config before Merge runs

	Kind     *string // "oneshot" (default), "cronjob", "notify"
	CronSpec *string

	Env     []EnvPair
	EnvFile *string
	Args    []string

	Before       []string
	After        []string
	Capabilities []string

	Pty *bool
}

// DuplicateField is returned when a field documented as "at most one
// occurrence" appears in more than one fragment merged under the same name.
type DuplicateField struct {
	Program, Field string
}

func (e *DuplicateField) Error() string {
	return fmt.Sprintf("program %q: field %q given more than once across merged fragments", e.Program, e.Field)
}

// Merge folds all fragments sharing the same Name into one Record, per the
// table in §4.2. Fragment order only matters for args, whose path-carrying
// fragment's own args must be listed first; order among the rest, and among
// other fields with "set union"/"concatenation" rules, is otherwise
// unspecified (spec explicitly allows this).
func Merge(fragments []RawProgram) (*Record, error) {
	if len(fragments) == 0 {
		return nil, fmt.Errorf("program.Merge: no fragments")
	}
	name := fragments[0].Name
	rec := newRecord(name)

	var pathFragmentArgs []string
	var otherArgs []string

	scalarOwners := map[string]string{} // field -> which occurrence already set it, for DuplicateField

	setScalarString := func(field string, cur *string, val *string) (*string, error) {
		if val == nil {
			return cur, nil
		}
		if _, seen := scalarOwners[field]; seen {
			return cur, &DuplicateField{Program: name, Field: field}
		}
		scalarOwners[field] = name
		return val, nil
	}

	var path, workdir, cronSpec *string
	var uid, gid *uint32
	var kind *string
	var pty bool

	for _, f := range fragments {
		var err error
		if path, err = setScalarString("path", path, f.Path); err != nil {
			return nil, err
		}
		if workdir, err = setScalarString("workdir", workdir, f.Workdir); err != nil {
			return nil, err
		}
		if cronSpec, err = setScalarString("cron_spec", cronSpec, f.CronSpec); err != nil {
			return nil, err
		}
		if f.UID != nil {
			if uid != nil {
				return nil, &DuplicateField{Program: name, Field: "uid"}
			}
			uid = f.UID
		}
		if f.GID != nil {
			if gid != nil {
				return nil, &DuplicateField{Program: name, Field: "gid"}
			}
			gid = f.GID
		}
		if f.Kind != nil {
			// "kind (non-oneshot)" is the at-most-once field: an explicit
			// "oneshot" fragment never conflicts since it's the default.
			if *f.Kind != "oneshot" {
				if kind != nil && *kind != "oneshot" {
					return nil, &DuplicateField{Program: name, Field: "kind"}
				}
				kind = f.Kind
			} else if kind == nil {
				kind = f.Kind
			}
		}

		// env: concatenation; duplicate keys resolve to *some* value, so a
		// later fragment's entry for the same key simply wins by virtue of
		// being applied later in internal/launcher's left-to-right pass.
		rec.Env = append(rec.Env, f.Env...)
		if f.EnvFile != nil {
			rec.EnvFile = *f.EnvFile // last one wins; not documented as exclusive
		}

		// args: path-carrying fragment's own args always lead.
		if f.Path != nil {
			pathFragmentArgs = append(pathFragmentArgs, f.Args...)
		} else {
			otherArgs = append(otherArgs, f.Args...)
		}

		rec.Before = lo.Reduce(f.Before, func(acc map[string]struct{}, v string, _ int) map[string]struct{} {
			acc[v] = struct{}{}
			return acc
		}, rec.Before)
		rec.After = lo.Reduce(f.After, func(acc map[string]struct{}, v string, _ int) map[string]struct{} {
			acc[v] = struct{}{}
			return acc
		}, rec.After)
		rec.Capabilities = lo.Uniq(append(rec.Capabilities, f.Capabilities...))

		if f.Pty != nil {
			pty = pty || *f.Pty
		}
	}

	if path == nil {
		return nil, fmt.Errorf("program %q: no fragment carries \"path\"", name)
	}
	rec.Path = *path
	if workdir != nil {
		rec.Workdir = *workdir
	}
	if uid != nil {
		rec.UID = *uid
	}
	if gid != nil {
		rec.GID = *gid
	}
	if pty {
		rec.Pty = true
	}

	rec.Args = append(append([]string{}, pathFragmentArgs...), otherArgs...)

	rec.Kind = Oneshot
	if kind != nil {
		switch *kind {
		case "oneshot", "":
			rec.Kind = Oneshot
		case "cronjob":
			rec.Kind = Cronjob
		case "notify":
			rec.Kind = Notify
		default:
			return nil, fmt.Errorf("program %q: unknown kind %q", name, *kind)
		}
	}
	if rec.Kind == Cronjob {
		if cronSpec == nil {
			return nil, fmt.Errorf("program %q: cronjob requires a cron_spec", name)
		}
		spec, err := cronexpr.Parse(*cronSpec)
		if err != nil {
			return nil, fmt.Errorf("program %q: %w", name, err)
		}
		rec.CronSpec = spec
	}

	sort.Strings(rec.Capabilities)
	return rec, nil
}

// MergeDefaults applies a "defaults" RawProgram fragment (if any) ahead of
// a program's own fragments, using mergo so scalar zero-values in the
// program's own fragments don't accidentally shadow a configured default.
// This is used by internal/config when a configuration source defines a
// shared baseline (e.g. a common uid for "all programs unless overridden");
// it is a config-loading convenience, not part of the §4.2 merge table
// itself, so duplicate-field detection does not apply to it.
func MergeDefaults(base, override RawProgram) (RawProgram, error) {
	out := base
	if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
		return RawProgram{}, err
	}
	return out, nil
}
