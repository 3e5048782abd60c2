// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rowenginectl drives an offline secondary-index backfill against a
// table (spec.md §4.6). It is a thin flag-based front end over
// table.Table.NewBackfill/rowtrigger.IndexBackfill, wired to a
// self-contained in-memory demo table (internal/memstore) so the command
// genuinely runs a backfill end to end rather than only validating flags.
// An embedding program would swap internal/memstore for a real
// rowstore.Database/Index pair (spec.md §6 defines that contract but not an
// implementation of it).
package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"github.com/solidcoredata/rowengine/internal/memstore"
	"github.com/solidcoredata/rowengine/internal/rowlog"
	"github.com/solidcoredata/rowengine/internal/start"
	"github.com/solidcoredata/rowengine/rowcodec"
	"github.com/solidcoredata/rowengine/rowinfo"
	"github.com/solidcoredata/rowengine/rowschema"
	"github.com/solidcoredata/rowengine/rowtrigger"
	"github.com/solidcoredata/rowengine/table"
)

var (
	rowType     = flag.String("rowtype", "widget", "row type name of the demo table to backfill")
	secondary   = flag.String("secondary", "widget.by_name", "name of the secondary index to build")
	batchSize   = flag.Int("batch-size", 1000, "rows per sorter batch during the scan phase")
	stopTimeout = flag.Duration("stop-timeout", 30*time.Second, "grace period to finish an in-flight batch after SIGINT")
)

func main() {
	flag.Parse()
	log := rowlog.New(zap.NewExample())
	if err := start.Start(context.Background(), *stopTimeout, run(log)); err != nil {
		log.BackfillFailed(*secondary, *rowType, err)
	}
}

// run closes over the flags and logger, returning the start.StartFunc that
// start.Start drives; it is a func-returning-func rather than a bare
// package-level function (the teacher's cmd/dca shape) because this
// command's single worker needs access to parsed flags, which are not
// available until main has called flag.Parse.
func run(log *rowlog.Logger) start.StartFunc {
	return func(ctx context.Context) error {
		return start.RunAll(ctx, func(ctx context.Context) error {
			return backfill(ctx, log)
		})
	}
}

// demoInfo returns the fixed two-column row shape (int64 key "id", string
// value "name") this command seeds and backfills, named after rowType so a
// caller-chosen -rowtype flows through to the registry and the log lines.
func demoInfo(rowType string) (*rowinfo.RowInfo, error) {
	idTC := rowcodec.NewTypeCode(rowcodec.PlainInt64, false, false, false, false)
	idVal, err := rowcodec.NewPrimitiveCodec(idTC, false)
	if err != nil {
		return nil, err
	}
	idLex, err := rowcodec.NewPrimitiveCodec(idTC, true)
	if err != nil {
		return nil, err
	}

	nameTC := rowcodec.NewTypeCode(rowcodec.PlainUTF8, false, false, false, false)
	nameVal, err := rowcodec.NewStringCodec(nameTC, false)
	if err != nil {
		return nil, err
	}

	return rowinfo.NewRowInfo(rowType,
		[]rowinfo.ColumnInfo{{Name: "id", TypeCode: idTC, ValueCodec: idVal, LexCodec: idLex}},
		[]rowinfo.ColumnInfo{{Name: "name", TypeCode: nameTC, ValueCodec: nameVal}},
	)
}

// demoRows seeds a handful of widgets so the backfill has something to do.
var demoRows = []struct {
	id   int64
	name string
}{
	{1, "alpha"},
	{2, "bravo"},
	{3, "charlie"},
}

// byName projects a widget row onto its secondary: name -> primary key, so
// the secondary index answers "find the widget with this name".
func byName(info *rowinfo.RowInfo) rowtrigger.Transform {
	return func(row *rowinfo.Row) (key, value []byte, err error) {
		name, err := row.Get("name")
		if err != nil {
			return nil, nil, err
		}
		primaryKey, err := rowschema.EncodeKey(info, row)
		if err != nil {
			return nil, nil, err
		}
		return []byte(name.(string)), primaryKey, nil
	}
}

// backfill builds a self-contained demo table backed by internal/memstore,
// seeds it with demoRows, then drives a real rowtrigger.IndexBackfill over
// the named secondary, logging success or failure from its actual outcome.
func backfill(ctx context.Context, log *rowlog.Logger) error {
	if *rowType == "" {
		return errMissingFlag("rowtype")
	}
	if *secondary == "" {
		return errMissingFlag("secondary")
	}
	if *batchSize <= 0 {
		return errMissingFlag("batch-size")
	}

	info, err := demoInfo(*rowType)
	if err != nil {
		return err
	}
	registry := rowschema.NewRegistry()
	primary := memstore.NewIndex(*rowType+".primary", 1)

	t, err := table.New(table.Config{
		RowType:       *rowType,
		Info:          info,
		SchemaVersion: 1,
		Registry:      registry,
		Primary:       primary,
		Log:           log,
	})
	if err != nil {
		return err
	}

	for _, d := range demoRows {
		row := rowinfo.NewRow(info)
		if err := row.Set("id", d.id); err != nil {
			return err
		}
		if err := row.Set("name", d.name); err != nil {
			return err
		}
		if err := t.Insert(ctx, row); err != nil {
			return err
		}
	}

	db := memstore.NewDatabase(log.EventListener().OnEvent)
	secondaryIdx := memstore.NewIndex(*secondary, 2)

	run := t.NewBackfill(rowtrigger.IndexBackfillConfig{
		Name:      *secondary,
		Secondary: secondaryIdx,
		DB:        db,
		Transform: byName(info),
		BatchSize: *batchSize,
	})
	if err := run.Run(ctx); err != nil {
		log.BackfillFailed(*secondary, *rowType, err)
		return err
	}
	log.BackfillCompleted(*secondary, *rowType)
	return nil
}

type errMissingFlag string

func (e errMissingFlag) Error() string {
	return "rowenginectl: missing required flag -" + string(e)
}
