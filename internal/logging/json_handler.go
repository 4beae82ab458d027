package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// FieldSubject is the JSON key carrying the composed worker/job subject, the
// same text the console handler prints after the component.
const FieldSubject = "subject"

// jsonHandler wraps slog's JSON handler and adds a subject field whenever a
// job or worker id is in scope, so JSON and console logs filter the same way.
type jsonHandler struct {
	slog.Handler
	jobID    string
	workerID string
	grouped  bool
}

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) (slog.Handler, error) {
	opts := slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return attr
			}
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(jsonTimestampLayout))
				}
			case slog.LevelKey:
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			case FieldJobID, FieldWorkerID:
				if strings.TrimSpace(attr.Value.String()) == "" {
					return slog.Attr{}
				}
			}
			return attr
		},
	}
	return &jsonHandler{Handler: slog.NewJSONHandler(w, &opts)}, nil
}

func (h *jsonHandler) Handle(ctx context.Context, record slog.Record) error {
	jobID, workerID := h.jobID, h.workerID
	if !h.grouped {
		record.Attrs(func(attr slog.Attr) bool {
			jobID, workerID = subjectIDs(attr, jobID, workerID)
			return true
		})
	}
	if subject := composeSubject(workerID, jobID); subject != "" {
		record = record.Clone()
		record.AddAttrs(slog.String(FieldSubject, subject))
	}
	return h.Handler.Handle(ctx, record)
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.Handler = h.Handler.WithAttrs(attrs)
	if !h.grouped {
		for _, attr := range attrs {
			clone.jobID, clone.workerID = subjectIDs(attr, clone.jobID, clone.workerID)
		}
	}
	return &clone
}

func (h *jsonHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.Handler = h.Handler.WithGroup(name)
	clone.grouped = true
	return &clone
}

func subjectIDs(attr slog.Attr, jobID, workerID string) (string, string) {
	switch attr.Key {
	case FieldJobID:
		jobID = attrString(attr.Value)
	case FieldWorkerID:
		workerID = attrString(attr.Value)
	}
	return jobID, workerID
}
