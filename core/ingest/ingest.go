// Package ingest turns parsed CSV uploads into persisted records: row normalization, validation, natural-key
// dedup, chunked skip-duplicates inserts (or one all-or-nothing replace) and ordered progress events.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Reason is the closed set of row rejection causes.
type Reason string

const (
	ReasonMissingRequiredField Reason = "MissingRequiredField"
	ReasonDuplicateKey         Reason = "DuplicateKey"
	ReasonScoreOutOfRange      Reason = "ScoreOutOfRange"
)

type (
	// Record is a normalized row. Records are built once per row and never mutated afterwards.
	Record interface {
		NaturalKey() string
		// Reject maps a failed validation tag to a row rejection.
		Reject(fe validator.FieldError) Rejection
		// DuplicateMessage is the rejection text used when the natural key is already taken.
		DuplicateMessage() string
	}

	Rejection struct {
		Reason  Reason
		Message string
	}

	// RowRejection is a rejected row as reported to the caller.
	RowRejection struct {
		Row    int    `json:"row"`
		Error  string `json:"error"`
		Reason Reason `json:"reason"`
	}

	// Store reads and writes one logical table.
	Store[T Record] interface {
		// ExistingKeys returns the subset of keys already persisted.
		ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error)
		// InsertMany inserts records in one statement, silently skipping unique-key conflicts.
		// It returns the number of rows actually inserted.
		InsertMany(ctx context.Context, records []T) (int, error)
	}

	// Replacer clears an owner's scope and hands a transactional Store to fn.
	// Everything fn writes is committed together, or rolled back if fn fails or the time budget runs out.
	Replacer[T Record] interface {
		Replace(ctx context.Context, fn func(ctx context.Context, tx Store[T]) error) error
	}

	// Metrics receives pipeline counters.
	Metrics interface {
		RowsCreated(pipeline string, n int)
		RowsRejected(pipeline string, reason Reason, n int)
		ChunkFailed(pipeline string)
	}
)

// Summary is the final outcome of one upload.
type Summary struct {
	Success        bool           `json:"success"`
	Message        string         `json:"message"`
	Created        int            `json:"created"`
	Errors         []RowRejection `json:"errors"`
	TotalProcessed int            `json:"totalProcessed"`
	Skipped        int            `json:"skipped"`
	Accepted       int            `json:"accepted"`
	FailedChunks   int            `json:"failedChunks"`
}

// CountByReason tallies rejections per reason.
func (s Summary) CountByReason() map[Reason]int {
	counts := make(map[Reason]int)
	for _, e := range s.Errors {
		counts[e.Reason]++
	}
	return counts
}

func (s *Summary) finalize(noun string, maxDisplay int) {
	s.Success = true
	if s.Errors == nil {
		s.Errors = []RowRejection{}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Successfully created %d %s", s.Created, noun)
	if n := len(s.Errors); n > 0 {
		fmt.Fprintf(&b, " with %d error(s): ", n)
		shown := s.Errors
		if len(shown) > maxDisplay {
			shown = shown[:maxDisplay]
		}
		for i, e := range shown {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "Row %d: %s", e.Row, e.Error)
		}
		if n > len(shown) {
			fmt.Fprintf(&b, " ... and %d more", n-len(shown))
		}
	}
	s.Message = b.String()
}

type nopMetrics struct{}

func (nopMetrics) RowsCreated(string, int)          {}
func (nopMetrics) RowsRejected(string, Reason, int) {}
func (nopMetrics) ChunkFailed(string)               {}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	out := make([][]T, 0, (len(items)+size-1)/max(size, 1))
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
