/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package undo keeps reversible insertions per document so an editor can take
// back a generated block and put it back again.
package undo

import (
	"sync"
	"time"
)

// Entry is one applied insertion. Before and After are the full document
// texts around it; AttemptID links it to the journal when known.
type Entry struct {
	Document  string
	AttemptID string
	Before    string
	After     string
	TS        time.Time
}

func (e Entry) size() int { return len(e.Before) + len(e.After) }

// Config caps memory and depth.
type Config struct {
	// MaxBytes is a soft cap; the oldest entries across documents are pruned when exceeded.
	MaxBytes int
	// MaxPerDocument limits undo depth per document (0 means unlimited).
	MaxPerDocument int
}

// History is an undo/redo stack per document. It is safe for concurrent use.
type History struct {
	cfg Config
	mu  sync.Mutex

	undo map[string][]Entry
	redo map[string][]Entry

	totalBytes int
}

func NewHistory(cfg Config) *History {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024
	}
	return &History{cfg: cfg, undo: make(map[string][]Entry), redo: make(map[string][]Entry)}
}

// Push records an applied insertion and clears the redo stack of its document.
func (h *History) Push(e Entry) {
	if e.TS.IsZero() {
		e.TS = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo[e.Document] = append(h.undo[e.Document], e)
	h.totalBytes += e.size()
	h.redo[e.Document] = nil
	h.enforceCapsLocked(e.Document)
}

// Undo pops the newest insertion of doc; restore Entry.Before to take it back.
func (h *History) Undo(doc string) (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stack := h.undo[doc]
	if len(stack) == 0 {
		return Entry{}, false
	}
	e := stack[len(stack)-1]
	h.undo[doc] = stack[:len(stack)-1]
	h.totalBytes -= e.size()
	h.redo[doc] = append(h.redo[doc], e)
	return e, true
}

// Redo re-applies the last undone insertion of doc; restore Entry.After.
func (h *History) Redo(doc string) (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.redo[doc]
	if len(r) == 0 {
		return Entry{}, false
	}
	e := r[len(r)-1]
	h.redo[doc] = r[:len(r)-1]
	h.undo[doc] = append(h.undo[doc], e)
	h.totalBytes += e.size()
	h.enforceCapsLocked(doc)
	return e, true
}

// Clear drops both stacks of doc.
func (h *History) Clear(doc string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.undo[doc] {
		h.totalBytes -= e.size()
	}
	delete(h.undo, doc)
	delete(h.redo, doc)
	if h.totalBytes < 0 {
		h.totalBytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (h *History) Stats() (totalBytes int, documents int, entries int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	documents = len(h.undo)
	for _, v := range h.undo {
		entries += len(v)
	}
	return h.totalBytes, documents, entries
}

func (h *History) enforceCapsLocked(doc string) {
	if h.cfg.MaxPerDocument > 0 {
		stack := h.undo[doc]
		if extra := len(stack) - h.cfg.MaxPerDocument; extra > 0 {
			for _, e := range stack[:extra] {
				h.totalBytes -= e.size()
			}
			h.undo[doc] = append([]Entry{}, stack[extra:]...)
		}
	}
	// prune oldest across documents, but never the entry just pushed
	for h.totalBytes > h.cfg.MaxBytes {
		oldest := ""
		var oldestTS time.Time
		found := false
		for d, stack := range h.undo {
			if len(stack) == 0 || (d == doc && len(stack) == 1) {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldest, oldestTS, found = d, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := h.undo[oldest]
		h.totalBytes -= stack[0].size()
		h.undo[oldest] = stack[1:]
		if len(h.undo[oldest]) == 0 {
			delete(h.undo, oldest)
		}
	}
}
