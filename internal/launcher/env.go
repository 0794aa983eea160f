package launcher

import (
	"strings"

	"github.com/joho/godotenv"

	"github.com/cinit-dev/cinit/internal/program"
	"github.com/cinit-dev/cinit/internal/template"
)

// inheritSet is the fixed inherited set from §4.4 step 1.
var inheritSet = []string{"HOME", "LANG", "LANGUAGE", "LOGNAME", "PATH", "PWD", "SHELL", "TERM", "USER"}

// BuildEnv constructs the environment for one child, per §4.4 step 1:
//  1. start from the fixed inherit set, copied from the supervisor
//     environment, scrubbed of root-only values if the target uid != 0;
//  2. apply an optional env_file (supplemental, godotenv-parsed) ahead of
//     the program's own env list;
//  3. walk env left to right: a given value is template-expanded against
//     the bindings built so far and bound; an absent value inherits from
//     the supervisor if present, else is dropped.
//
// Returns the resulting "KEY=VALUE" slice (suitable for exec.Cmd.Env) plus
// any §4.7 forward-reference warnings, in the order they occurred.
func BuildEnv(rec *program.Record, supervisorEnv []string) (env []string, warnings []string, err error) {
	supervisor := toMap(supervisorEnv)
	bindings := map[string]string{}

	for _, k := range inheritSet {
		v, ok := supervisor[k]
		if !ok {
			continue
		}
		if rec.UID != 0 && strings.Contains(v, "/root") {
			continue
		}
		bindings[k] = v
	}

	if rec.EnvFile != "" {
		fileVars, ferr := godotenv.Read(rec.EnvFile)
		if ferr != nil {
			return nil, nil, ferr
		}
		for k, v := range fileVars {
			bindings[k] = v
		}
	}

	warn := func(name string) {
		warnings = append(warnings, name)
	}

	for _, pair := range rec.Env {
		if pair.Value != nil {
			expanded, terr := template.Expand(*pair.Value, bindings, warn)
			if terr != nil {
				return nil, nil, terr
			}
			bindings[pair.Key] = expanded
			continue
		}
		if v, ok := supervisor[pair.Key]; ok {
			bindings[pair.Key] = v
		}
		// absent value, not present in supervisor env: dropped (no-op).
	}

	out := make([]string, 0, len(bindings))
	for k, v := range bindings {
		out = append(out, k+"="+v)
	}
	return out, warnings, nil
}

func toMap(kvs []string) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			m[kv[:idx]] = kv[idx+1:]
		}
	}
	return m
}
