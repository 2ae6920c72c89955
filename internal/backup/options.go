/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backup

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"tasksphere/internal/domain"
)

// ErrInvalidOptions reports an options document that is not an object of boolean include flags.
var ErrInvalidOptions = errors.New("invalid backup options")

//go:embed options.schema.json
var optionsSchema []byte

var compiledOptionsSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(optionsSchema))
})

// Options selects entity types per include flag. A flag that is absent means include.
type Options struct {
	flags map[domain.EntityType]bool
	raw   json.RawMessage
}

// DefaultOptions includes every entity type.
func DefaultOptions() Options { return Options{} }

// ParseOptions validates and decodes an options document. Empty input or null yields DefaultOptions.
func ParseOptions(raw []byte) (Options, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return DefaultOptions(), nil
	}
	if !json.Valid(trimmed) {
		return Options{}, fmt.Errorf("%w: not valid JSON", ErrInvalidOptions)
	}
	schema, err := compiledOptionsSchema()
	if err != nil {
		return Options{}, fmt.Errorf("compile options schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(trimmed))
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Options{}, fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(msgs, "; "))
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	o := Options{flags: make(map[domain.EntityType]bool), raw: append(json.RawMessage(nil), trimmed...)}
	for _, t := range domain.EntityTypes() {
		v, ok := doc[t.OptionKey()]
		if !ok {
			continue
		}
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return Options{}, fmt.Errorf("%w: %s: %v", ErrInvalidOptions, t.OptionKey(), err)
		}
		o.flags[t] = b
	}
	return o, nil
}

// OptionsFor builds Options that include exactly the given types.
func OptionsFor(types ...domain.EntityType) Options {
	o := Options{flags: make(map[domain.EntityType]bool)}
	for _, t := range domain.EntityTypes() {
		o.flags[t] = false
	}
	for _, t := range types {
		o.flags[t] = true
	}
	return o
}

// Includes reports whether t is selected.
func (o Options) Includes(t domain.EntityType) bool {
	v, ok := o.flags[t]
	return !ok || v
}

// MarshalJSON returns the document as supplied, or the five flags in canonical order.
func (o Options) MarshalJSON() ([]byte, error) {
	if len(o.raw) > 0 {
		return o.raw, nil
	}
	var b bytes.Buffer
	b.WriteByte('{')
	for i, t := range domain.EntityTypes() {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q:%t", t.OptionKey(), o.Includes(t))
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON accepts the same documents as ParseOptions.
func (o *Options) UnmarshalJSON(data []byte) error {
	parsed, err := ParseOptions(data)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
