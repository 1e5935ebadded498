/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package engine is the entry point the editor calls: scene detection, prompt
// assembly, response validation, normalization and insertion planning, plus a
// Generate pipeline that runs them around a model call.
//
// Everything except Generate and the undo history is pure and safe for
// concurrent use.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"screenwriter/internal/characters"
	"screenwriter/internal/fountain"
	"screenwriter/internal/insertion"
	applog "screenwriter/internal/log"
	"screenwriter/internal/normalize"
	"screenwriter/internal/prompt"
	"screenwriter/internal/scene"
	"screenwriter/internal/storage"
	"screenwriter/internal/undo"
	"screenwriter/internal/validate"
)

// Generator produces the model's raw reply to a prompt. Cancellation happens here and only here.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Journal records generation attempts. storage.Journal implements it.
type Journal interface {
	Record(ctx context.Context, a storage.Attempt) (string, error)
}

// ErrNoGenerator is returned by Generate when the engine has no Generator.
var ErrNoGenerator = errors.New("engine: no generator configured")

// RejectedError reports a reply that failed the hard validation tier. Nothing
// was inserted.
type RejectedError struct {
	Errors    []string
	AttemptID string
}

func (e *RejectedError) Error() string {
	if len(e.Errors) == 0 {
		return "generation rejected"
	}
	return "generation rejected: " + e.Errors[0]
}

// Options tunes the engine. Zero fields take the package defaults.
type Options struct {
	// CharsPerPage < 0 disables page estimates.
	CharsPerPage     int
	MinContentLines  int
	TargetMinLines   int
	TargetMaxLines   int
	MaxContextChars  int
	MaxSummaryChars  int
	LineTolerancePct int

	Headings fountain.SceneHeadingMatcher
	Cues     fountain.CharacterCueMatcher

	Generator Generator
	Registry  characters.Registry
	Journal   Journal

	// History, when set, lets Undo and Redo take back insertions made through Apply.
	History *undo.History

	// Model is recorded with each journal entry.
	Model string
}

// Engine holds the configured components. Apart from an optional History it
// keeps no per-call state.
type Engine struct {
	detector   *scene.Detector
	builder    characters.Builder
	assembler  prompt.Assembler
	validator  *validate.Validator
	normalizer *normalize.Normalizer
	planner    *insertion.Planner
	system     string

	gen      Generator
	registry characters.Registry
	journal  Journal
	history  *undo.History
	model    string
	log      *slog.Logger
}

// New builds an Engine from opts.
func New(opts Options) (*Engine, error) {
	headings := opts.Headings
	if headings == nil {
		headings = fountain.DefaultHeadings
	}
	cues := opts.Cues
	if cues == nil {
		cues = fountain.DefaultCues
	}
	cpp := opts.CharsPerPage
	switch {
	case cpp == 0:
		cpp = scene.DefaultCharsPerPage
	case cpp < 0:
		cpp = 0
	}
	v, err := validate.New(validate.Options{MinContentLines: opts.MinContentLines, LineTolerancePct: opts.LineTolerancePct})
	if err != nil {
		return nil, err
	}
	return &Engine{
		detector:   &scene.Detector{CharsPerPage: cpp, Headings: headings, Cues: cues},
		builder:    characters.Builder{MaxSummaryChars: opts.MaxSummaryChars},
		assembler:  prompt.Assembler{MaxContextChars: opts.MaxContextChars},
		validator:  v,
		normalizer: &normalize.Normalizer{Headings: headings, Cues: cues},
		planner:    &insertion.Planner{Headings: headings},
		system:     prompt.SystemInstruction(opts.TargetMinLines, opts.TargetMaxLines),
		gen:        opts.Generator,
		registry:   opts.Registry,
		journal:    opts.Journal,
		history:    opts.History,
		model:      opts.Model,
		log:        applog.WithComponent("engine"),
	}, nil
}

// DetectScene returns the scene enclosing offset, or nil before the first heading.
func (e *Engine) DetectScene(text string, offset int) (*scene.Context, error) {
	return e.detector.Detect(text, offset)
}

// DetectPrevious returns the scene before the one enclosing offset, or nil.
func (e *Engine) DetectPrevious(text string, offset int) (*scene.Context, error) {
	cur, err := e.detector.Detect(text, offset)
	if err != nil || cur == nil {
		return nil, err
	}
	return e.detector.Previous(text, cur.StartLine), nil
}

// Summaries looks up the named characters in the configured registry.
func (e *Engine) Summaries(ctx context.Context, names []string) ([]characters.Summary, error) {
	return e.builder.Build(ctx, names, e.registry)
}

// SystemInstruction is the system message sent with every prompt.
func (e *Engine) SystemInstruction() string { return e.system }

// BuildPrompt checks reqs and assembles the user prompt. current and previous may be nil.
func (e *Engine) BuildPrompt(reqs []prompt.SceneRequest, current, previous *scene.Context, summaries []characters.Summary) (string, error) {
	if err := prompt.ValidateRequests(reqs); err != nil {
		return "", err
	}
	return e.assembler.Assemble(reqs, current, previous, summaries), nil
}

// Validate checks a model reply. requested <= 0 skips the scene count check.
func (e *Engine) Validate(output, contextBeforeCursor string, requested int) validate.Result {
	return e.validator.Validate(output, contextBeforeCursor, requested)
}

// Normalize formats one scene's content lines.
func (e *Engine) Normalize(content []string) string {
	return e.normalizer.Text(content)
}

// JoinScenes formats scenes into the block handed to PlanInsertion.
func (e *Engine) JoinScenes(scenes []fountain.Scene) string {
	return e.normalizer.Join(scenes)
}

// PlanInsertion pads block for insertion at offset.
func (e *Engine) PlanInsertion(text string, offset int, block string) insertion.Plan {
	return e.planner.Plan(text, offset, block)
}

// Apply splices plan into doc.Text and returns the new text. With a History
// configured the change is recorded under doc.Path.
func (e *Engine) Apply(doc Document, plan insertion.Plan, attemptID string) string {
	next := insertion.Apply(doc.Text, plan)
	if e.history != nil {
		e.history.Push(undo.Entry{Document: doc.Path, AttemptID: attemptID, Before: doc.Text, After: next})
	}
	return next
}

// Undo returns the text of path before its newest applied insertion.
func (e *Engine) Undo(path string) (string, bool) {
	if e.history == nil {
		return "", false
	}
	ent, ok := e.history.Undo(path)
	return ent.Before, ok
}

// Redo returns the text of path with its last undone insertion re-applied.
func (e *Engine) Redo(path string) (string, bool) {
	if e.history == nil {
		return "", false
	}
	ent, ok := e.history.Redo(path)
	return ent.After, ok
}

// Document is the editor state a generation runs against.
type Document struct {
	Text   string
	Cursor int
	// Path is informational; it is recorded in the journal.
	Path string
}

// Outcome is a successful generation. Applying Plan to the document inserts the scenes.
type Outcome struct {
	AttemptID string
	Status    validate.Status
	Scenes    []fountain.Scene
	Block     string
	Plan      insertion.Plan
	Warnings  []string
	Prompt    string
	Current   *scene.Context
	Previous  *scene.Context
}

// Generate runs the whole pipeline for reqs at doc.Cursor. Input errors come
// back before the model is called; a reply failing the hard tier yields a
// *RejectedError. Soft-tier warnings are returned in the Outcome.
func (e *Engine) Generate(ctx context.Context, doc Document, reqs []prompt.SceneRequest) (*Outcome, error) {
	if err := prompt.ValidateRequests(reqs); err != nil {
		return nil, err
	}
	if e.gen == nil {
		return nil, ErrNoGenerator
	}
	id := uuid.NewString()
	ctx = applog.ContextWith(ctx, slog.String("gen", id))
	l := applog.WithOperation(e.log, "generate")

	current, err := e.detector.Detect(doc.Text, doc.Cursor)
	if err != nil {
		return nil, fmt.Errorf("detect scene: %w", err)
	}
	var previous *scene.Context
	var names []string
	if current != nil {
		previous = e.detector.Previous(doc.Text, current.StartLine)
		names = current.Characters
	}
	summaries, err := e.builder.Build(ctx, names, e.registry)
	if err != nil {
		return nil, fmt.Errorf("character summaries: %w", err)
	}
	userPrompt := e.assembler.Assemble(reqs, current, previous, summaries)
	l.InfoContext(ctx, "generating", slog.Int("requested", len(reqs)), slog.Bool("in_scene", current != nil), slog.Int("characters", len(summaries)))

	reply, err := e.gen.Generate(ctx, e.system, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	attempt := storage.Attempt{
		ID:        id,
		Document:  doc.Path,
		Model:     e.model,
		Requested: len(reqs),
		Prompt:    userPrompt,
		Output:    reply,
	}
	res := e.validator.Validate(reply, doc.Text[:doc.Cursor], len(reqs))
	attempt.Status = res.Status.String()
	attempt.Errors = res.Errors
	attempt.Warnings = res.Warnings
	if !res.Usable() {
		l.WarnContext(ctx, "reply rejected", slog.String("first_error", res.FirstError()), slog.Int("errors", len(res.Errors)))
		e.record(ctx, attempt)
		return nil, &RejectedError{Errors: res.Errors, AttemptID: id}
	}

	block := e.normalizer.Join(res.Scenes)
	plan := e.planner.Plan(doc.Text, doc.Cursor, block)
	attempt.Scenes = len(res.Scenes)
	attempt.InsertAt = plan.At
	attempt.Inserted = plan.Text
	e.record(ctx, attempt)

	if len(res.Warnings) > 0 {
		l.InfoContext(ctx, "reply accepted with warnings", slog.String("warnings", strings.Join(res.Warnings, "; ")))
	} else {
		l.InfoContext(ctx, "reply accepted", slog.Int("scenes", len(res.Scenes)))
	}
	return &Outcome{
		AttemptID: id,
		Status:    res.Status,
		Scenes:    res.Scenes,
		Block:     block,
		Plan:      plan,
		Warnings:  res.Warnings,
		Prompt:    userPrompt,
		Current:   current,
		Previous:  previous,
	}, nil
}

// record writes to the journal; a failing journal never fails the generation.
func (e *Engine) record(ctx context.Context, a storage.Attempt) {
	if e.journal == nil {
		return
	}
	if _, err := e.journal.Record(ctx, a); err != nil {
		e.log.WarnContext(ctx, "journal record failed", slog.Any("err", err))
	}
}
