package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bassista/go_lmsync/internal/api/controller"
	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/jsonvalue"
)

type printer struct {
	format string
	w      io.Writer
}

func newPrinter(opts *rootOptions, w io.Writer) printer {
	return printer{format: opts.Format, w: w}
}

func (p printer) json() bool { return p.format == "json" }

func (p printer) writeJSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) result(res controller.SyncResponse) {
	fmt.Fprintf(p.w, "%s  fetched=%t from_cache=%t pages=%d complete=%t\n",
		res.UseCase, res.Fetched, res.FromCache, res.Pages, res.Complete)
	if res.Error != "" {
		fmt.Fprintf(p.w, "  error (%s): %s\n", res.Kind, res.Error)
	}
}

func (p printer) records(records []entity.Record, indent string) {
	for _, r := range records {
		fmt.Fprintf(p.w, "%s%s/%s  %s\n", indent, r.Type, r.ID, label(r))
	}
}

// label picks a human readable field of a record.
func label(r entity.Record) string {
	for _, field := range []string{"name", "title"} {
		if v, ok := r.Fields.Get(field); ok {
			if s, ok := jsonvalue.AsString(v); ok {
				return s
			}
		}
	}
	return strings.TrimSpace(jsonvalue.Canonical(r.Fields))
}
