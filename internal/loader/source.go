package loader

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/markdave123-py/docloader/internal/models"
)

// Descriptor keys with a meaning of their own. Anything else lands in Options.Extra.
const (
	keyURL            = "url"
	keyData           = "data"
	keyPassword       = "password"
	keyDisableRange   = "disableRange"
	keyRangeChunkSize = "rangeChunkSize"
	keyVerbosity      = "verbosity"
)

// Normalize turns a caller-supplied source into a LoadRequest with a fresh id.
// It does no I/O: locators are left for the worker to fetch.
func Normalize(src models.Source) (models.LoadRequest, error) {
	req := models.LoadRequest{Options: models.DefaultOptions()}

	switch s := src.(type) {
	case models.TextLocator:
		loc := strings.TrimSpace(string(s))
		if loc == "" {
			return models.LoadRequest{}, &InvalidSourceError{Reason: "empty locator"}
		}
		req.Kind = models.SourceLocator
		req.Locator = loc

	case models.RawBytes:
		if len(s) == 0 {
			return models.LoadRequest{}, &InvalidSourceError{Reason: "empty byte buffer"}
		}
		req.Kind = models.SourceBytes
		req.Data = s

	case models.StructuredDescriptor:
		if err := mergeDescriptor(&req, s); err != nil {
			return models.LoadRequest{}, err
		}
		req.Kind = models.SourceDescriptor

	case nil:
		return models.LoadRequest{}, &InvalidSourceError{Reason: "nil source"}

	default:
		return models.LoadRequest{}, &InvalidSourceError{Reason: fmt.Sprintf("unsupported source type %T", src)}
	}

	req.ID = uuid.NewString()
	return req, nil
}

// mergeDescriptor applies the descriptor on top of the defaults already in req.
func mergeDescriptor(req *models.LoadRequest, d models.StructuredDescriptor) error {
	for k, v := range d {
		if v == nil {
			continue
		}
		switch k {
		case keyURL:
			loc, err := locatorValue(v)
			if err != nil {
				return err
			}
			req.Locator = loc

		case keyData:
			data, err := dataValue(v)
			if err != nil {
				return err
			}
			req.Data = data

		case keyPassword:
			pw, ok := v.(string)
			if !ok {
				return &InvalidSourceError{Reason: fmt.Sprintf("%s must be a string, got %T", k, v)}
			}
			req.Options.Password = pw

		case keyDisableRange:
			b, ok := v.(bool)
			if !ok {
				return &InvalidSourceError{Reason: fmt.Sprintf("%s must be a bool, got %T", k, v)}
			}
			req.Options.DisableRange = b

		case keyRangeChunkSize:
			n, ok := intValue(v)
			if !ok || n <= 0 {
				return &InvalidSourceError{Reason: fmt.Sprintf("%s must be a positive integer, got %v", k, v)}
			}
			req.Options.RangeChunkSize = n

		case keyVerbosity:
			n, ok := intValue(v)
			if !ok || n < 0 {
				return &InvalidSourceError{Reason: fmt.Sprintf("%s must be a non-negative integer, got %v", k, v)}
			}
			req.Options.Verbosity = n

		default:
			if req.Options.Extra == nil {
				req.Options.Extra = make(map[string]any)
			}
			req.Options.Extra[k] = v
		}
	}

	if req.Locator == "" && len(req.Data) == 0 {
		return &InvalidSourceError{Reason: "descriptor has neither url nor data"}
	}
	return nil
}

func locatorValue(v any) (string, error) {
	switch u := v.(type) {
	case string:
		return strings.TrimSpace(u), nil
	case models.TextLocator:
		return strings.TrimSpace(string(u)), nil
	case *url.URL:
		return u.String(), nil
	case url.URL:
		return u.String(), nil
	}
	return "", &InvalidSourceError{Reason: fmt.Sprintf("url must be a string or URL, got %T", v)}
}

func dataValue(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case models.RawBytes:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return nil, &InvalidSourceError{Reason: fmt.Sprintf("data must be bytes or a string, got %T", v)}
}

// intValue accepts Go integers and integral floats, which is what JSON decoding
// produces. Values that do not fit in an int are rejected.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int64Value(n)
	case uint:
		return uint64Value(uint64(n))
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return uint64Value(uint64(n))
	case uint64:
		return uint64Value(n)
	case float64:
		// NaN fails the Trunc comparison; ±Inf fails the bounds.
		if n != math.Trunc(n) || n < float64(math.MinInt) || n >= -float64(math.MinInt) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int64Value(i)
	}
	return 0, false
}

func int64Value(n int64) (int, bool) {
	if n < math.MinInt || n > math.MaxInt {
		return 0, false
	}
	return int(n), true
}

func uint64Value(n uint64) (int, bool) {
	if n > math.MaxInt {
		return 0, false
	}
	return int(n), true
}
