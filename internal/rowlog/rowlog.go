// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rowlog wraps a *zap.Logger the way ts.Writer wraps an io.Writer: a
// small constructor plus domain-specific helper methods for every
// diagnostic spec.md §7 calls out (backfill failures, filter-compiler
// fallback to the Complex path, trigger-drain waits).
package rowlog

import (
	"go.uber.org/zap"

	"github.com/solidcoredata/rowengine/rowstore"
)

// Logger adapts rowengine's diagnostic events onto structured zap fields.
type Logger struct {
	z *zap.Logger
}

// New wraps z; a nil z is replaced with zap.NewNop() so a Logger is always
// safe to call.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// BackfillFailed logs spec.md §4.6's "on failure the secondary is left in a
// quiescent state and a diagnostic event is emitted".
func (l *Logger) BackfillFailed(secondary, rowType string, cause error) {
	l.z.Error("rowengine: secondary index backfill failed",
		zap.String("secondary", secondary),
		zap.String("row_type", rowType),
		zap.Error(cause),
	)
}

// BackfillCompleted logs a successful swap to the fully-live trigger.
func (l *Logger) BackfillCompleted(secondary, rowType string) {
	l.z.Info("rowengine: secondary index backfill completed",
		zap.String("secondary", secondary),
		zap.String("row_type", rowType),
	)
}

// FilterFallback logs spec.md §4.2's DNF-explosion fallback: a filter whose
// disjunctive normal form exceeded MaxNormalFormTerms is scanned with its
// reduced (non-DNF) form marked Complex instead.
func (l *Logger) FilterFallback(canonical string, termCount int) {
	l.z.Warn("rowengine: filter exceeded normal-form term budget, falling back to Complex",
		zap.String("filter", canonical),
		zap.Int("terms", termCount),
	)
}

// TriggerDrain logs a trigger swap that had to wait for in-flight writes
// against the outgoing trigger to release it.
func (l *Logger) TriggerDrain(rowType string) {
	l.z.Debug("rowengine: trigger swap waiting for in-flight writers to drain", zap.String("row_type", rowType))
}

// EventListener adapts detail-mapped diagnostic events (rowstore.Database's
// EventListener contract, consumed by rowtrigger.IndexBackfill) onto
// Logger's structured methods.
func (l *Logger) EventListener() rowstore.EventListener {
	return eventListener{l}
}

type eventListener struct {
	l *Logger
}

func (e eventListener) OnEvent(name string, detail map[string]interface{}) {
	switch name {
	case "backfill_failed":
		secondary, _ := detail["secondary"].(string)
		rowType, _ := detail["rowType"].(string)
		causeText, _ := detail["error"].(string)
		e.l.z.Error("rowengine: secondary index backfill failed",
			zap.String("secondary", secondary),
			zap.String("row_type", rowType),
			zap.String("cause", causeText),
		)
	default:
		fields := make([]zap.Field, 0, len(detail)+1)
		fields = append(fields, zap.String("event", name))
		for k, v := range detail {
			fields = append(fields, zap.Any(k, v))
		}
		e.l.z.Info("rowengine: event", fields...)
	}
}
