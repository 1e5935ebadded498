/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package provider

import "context"

type deltaKey struct{}

// WithDelta returns a context that asks generators to stream reply chunks to fn.
// It takes precedence over Options.OnDelta for calls made with that context.
func WithDelta(ctx context.Context, fn func(chunk string)) context.Context {
	return context.WithValue(ctx, deltaKey{}, fn)
}

func deltaFrom(ctx context.Context, fallback func(string)) func(string) {
	if fn, ok := ctx.Value(deltaKey{}).(func(chunk string)); ok && fn != nil {
		return fn
	}
	return fallback
}
