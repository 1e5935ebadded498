/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package characters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// MemoryRegistry is an in-memory Registry. It is read-only after construction
// and therefore safe for concurrent lookups.
type MemoryRegistry struct {
	byKey map[string]Character
	all   []Character
}

// NewMemoryRegistry indexes chars by name and aliases. Later entries win on key clashes.
func NewMemoryRegistry(chars ...Character) *MemoryRegistry {
	m := &MemoryRegistry{byKey: make(map[string]Character, len(chars))}
	for _, c := range chars {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		m.all = append(m.all, c)
		m.byKey[key(c.Name)] = c
		for _, a := range c.Aliases {
			if strings.TrimSpace(a) != "" {
				m.byKey[key(a)] = c
			}
		}
	}
	sort.SliceStable(m.all, func(i, j int) bool { return key(m.all[i].Name) < key(m.all[j].Name) })
	return m
}

func (m *MemoryRegistry) Lookup(_ context.Context, name string) (Character, bool, error) {
	if m == nil {
		return Character{}, false, nil
	}
	c, ok := m.byKey[key(name)]
	return c, ok, nil
}

// List returns all characters ordered by name.
func (m *MemoryRegistry) List() []Character {
	return append([]Character(nil), m.all...)
}

// File is the on-disk YAML shape:
//
//	characters:
//	  - name: JANE
//	    role: night guard
//	    traits: [wary, dry humour]
type File struct {
	Characters []Character `yaml:"characters"`
}

// ParseYAML builds a MemoryRegistry from YAML bytes.
func ParseYAML(data []byte) (*MemoryRegistry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse characters yaml: %w", err)
	}
	return NewMemoryRegistry(f.Characters...), nil
}

// LoadYAML reads a characters YAML file.
func LoadYAML(path string) (*MemoryRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("characters file path is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read characters file: %w", err)
	}
	return ParseYAML(b)
}
