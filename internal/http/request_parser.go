package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"expense/internal/core"
)

const maxBodyBytes = 64 << 10

// requestError marks malformed input: a bad id, unparsable parameters or
// an undecodable body. It maps to 400.
type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return requestError{fmt.Errorf(format, args...)}
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, requestError{fmt.Errorf("%w: %q", core.ErrInvalidID, raw)}
	}
	return id, nil
}

// optionalID parses an optional positive id query parameter.
func optionalID(q url.Values, key string) (int64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("%s: %w: %q", key, core.ErrInvalidID, raw)
	}
	return id, nil
}

// splitPair splits "a,b" into its trimmed halves. Either half may be empty.
func splitPair(raw string) (string, string, bool) {
	a, b, ok := strings.Cut(raw, ",")
	return strings.TrimSpace(a), strings.TrimSpace(b), ok
}

func requiredDate(q url.Values, key string) (core.Date, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return core.Date{}, badRequest("%s is required", key)
	}
	d, err := core.ParseDate(raw)
	if err != nil {
		return core.Date{}, requestError{fmt.Errorf("%s: %w", key, err)}
	}
	return d, nil
}

// parseSearch reads the expense-certain query: dates=from,to (required),
// categoryId, prices=min,max, note and orderBy.
func parseSearch(q url.Values) (core.ExpenseFilter, error) {
	var f core.ExpenseFilter

	from, to, ok := splitPair(q.Get("dates"))
	if !ok || from == "" || to == "" {
		return f, badRequest("dates must be given as from,to")
	}
	var err error
	if f.From, err = core.ParseDate(from); err != nil {
		return f, requestError{fmt.Errorf("dates: %w", err)}
	}
	if f.To, err = core.ParseDate(to); err != nil {
		return f, requestError{fmt.Errorf("dates: %w", err)}
	}

	if f.CategoryID, err = optionalID(q, "categoryId"); err != nil {
		return f, err
	}

	if raw := q.Get("prices"); strings.TrimSpace(raw) != "" {
		lo, hi, ok := splitPair(raw)
		if !ok {
			return f, badRequest("prices must be given as min,max")
		}
		if f.MinTotal, err = bound(lo); err != nil {
			return f, err
		}
		if f.MaxTotal, err = bound(hi); err != nil {
			return f, err
		}
	}

	f.Note = strings.TrimSpace(q.Get("note"))
	if f.OrderBy, err = core.ParseOrderBy(q.Get("orderBy")); err != nil {
		return f, requestError{err}
	}
	return f, nil
}

func bound(raw string) (*core.Money, error) {
	if raw == "" {
		return nil, nil
	}
	cents, err := core.ParseBoundToCents(raw)
	if err != nil {
		return nil, requestError{fmt.Errorf("prices: %w", err)}
	}
	return &core.Money{Cents: cents}, nil
}

// decodeJSON reads a single JSON value from the body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		// Money and Date report domain errors from their decoders.
		if errors.Is(err, core.ErrInvalidAmount) || errors.Is(err, core.ErrInvalidDate) ||
			errors.Is(err, core.ErrInvalidDay) || errors.Is(err, core.ErrInvalidMonth) {
			return err
		}
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}
