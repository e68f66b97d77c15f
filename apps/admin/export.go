package main

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/edecs/academy/core/report"
)

// export writes the unfiltered progress report. The operator is trusted: no role check.
func (cli *commandLine) export(format, out string) error {
	var write func(io.Writer, []report.Row) error
	switch format {
	case report.FormatCSV:
		write = report.WriteCSV
	case report.FormatXLSX:
		write = report.WriteXLSX
	default:
		return errors.Errorf("%q: unsupported export format", format)
	}

	snap, err := cli.reports.Snapshot(context.Background())
	if err != nil {
		return err
	}
	rows := report.Build(snap)

	if out == "-" {
		w := cli.out
		if w == nil {
			w = os.Stdout
		}
		return write(w, rows)
	}

	f, err := os.Create(out)
	if err != nil {
		return errors.Wrap(err, "creating export file")
	}
	if err = write(f, rows); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "closing export file")
}
