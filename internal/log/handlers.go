/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"context"
	"errors"
	"log/slog"
)

// fanout sends each record to every sink that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, lv slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, lv) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

type slotKey struct{}

// ContextWithSlot returns ctx carrying a slot index. Records logged with it get a slot attribute.
func ContextWithSlot(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, slotKey{}, index)
}

// SlotFromContext returns the index stored by ContextWithSlot.
func SlotFromContext(ctx context.Context) (int, bool) {
	if ctx == nil {
		return 0, false
	}
	idx, ok := ctx.Value(slotKey{}).(int)
	return idx, ok
}

// slotHandler copies the context slot onto the record.
type slotHandler struct{ next slog.Handler }

func (s slotHandler) Enabled(ctx context.Context, lv slog.Level) bool { return s.next.Enabled(ctx, lv) }

func (s slotHandler) Handle(ctx context.Context, r slog.Record) error {
	if idx, ok := SlotFromContext(ctx); ok {
		r.AddAttrs(slog.Int("slot", idx))
	}
	return s.next.Handle(ctx, r)
}

func (s slotHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return slotHandler{next: s.next.WithAttrs(attrs)}
}

func (s slotHandler) WithGroup(name string) slog.Handler {
	return slotHandler{next: s.next.WithGroup(name)}
}
