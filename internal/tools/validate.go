// Copyright © 2025 DBDiag Agents Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tools

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/skysql-oss/dbdiag-agents/internal/common/errs"
)

var structValidator = validator.New()

// validateArgs coerces types, applies defaults, rejects unknown keys,
// and rejects missing required keys.
// When the tool supplies a typed ArgsStruct, the raw map is additionally
// decoded into it via mapstructure and checked against its `validate`
// struct tags, then re-flattened to a normalized map so the coercions
// and defaults are visible to the handler.
func validateArgs(d Descriptor, raw map[string]any) (map[string]any, errs.DBDiagError) {
	known := make(map[string]Parameter, len(d.Schema.Parameters))
	for _, p := range d.Schema.Parameters {
		known[p.Name] = p
	}
	for key := range raw {
		if _, ok := known[key]; !ok {
			return nil, errs.Newf(errs.KindBadArgs, "unknown argument %q", key)
		}
	}

	out := make(map[string]any, len(known))
	for key := range raw {
		out[key] = raw[key]
	}
	for _, p := range d.Schema.Parameters {
		v, present := out[p.Name]
		if !present {
			if p.Required {
				return nil, errs.Newf(errs.KindBadArgs, "missing required argument %q", p.Name)
			}
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}
		coerced, err := coerce(p, v)
		if err != nil {
			return nil, errs.Newf(errs.KindBadArgs, "argument %q: %v", p.Name, err)
		}
		out[p.Name] = coerced
	}

	if d.ArgsStruct != nil {
		target := d.ArgsStruct()
		if err := mapstructure.Decode(out, target); err != nil {
			return nil, errs.Wrap(errs.KindBadArgs, "decoding arguments", err)
		}
		if err := structValidator.Struct(target); err != nil {
			return nil, errs.Wrap(errs.KindBadArgs, "validating arguments", err)
		}
		normalized, err := json.Marshal(target)
		if err != nil {
			return nil, errs.Wrap(errs.KindBadArgs, "normalizing arguments", err)
		}
		var asMap map[string]any
		if err := json.Unmarshal(normalized, &asMap); err != nil {
			return nil, errs.Wrap(errs.KindBadArgs, "normalizing arguments", err)
		}
		return asMap, nil
	}

	return out, nil
}

func coerce(p Parameter, v any) (any, error) {
	switch p.Type {
	case "integer":
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			return int(n), nil
		default:
			return nil, fmt.Errorf("expected integer, got %T", v)
		}
	case "number":
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		default:
			return nil, fmt.Errorf("expected number, got %T", v)
		}
	case "boolean":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", v)
		}
		return b, nil
	case "string":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		if len(p.Enum) > 0 && !contains(p.Enum, s) {
			return nil, fmt.Errorf("value %q not in allowed set %v", s, p.Enum)
		}
		return s, nil
	default:
		return v, nil
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
