// Package remote talks to the per-user document store.
package remote

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
)

// ErrPermissionDenied is returned when the backend rejects the caller.
// It is an expected condition for signed-out or misconfigured clients.
var ErrPermissionDenied = errors.New("permission denied")

// DocumentStore reads and merge-writes user documents.
type DocumentStore interface {
	// GetDocument returns nil and no error when the document does not exist.
	GetDocument(ctx context.Context, userID string) (*models.Document, error)
	// SetDocument creates the document if needed and overwrites only the
	// given top-level fields.
	SetDocument(ctx context.Context, userID string, fields map[string]any) error
}

var idReplacer = strings.NewReplacer(
	".", "_",
	"#", "_",
	"$", "_",
	"[", "_",
	"]", "_",
	"/", "_",
)

// NormalizeUserID maps an identity onto a valid document key.
func NormalizeUserID(userID string) string {
	return idReplacer.Replace(userID)
}

// IsPermissionDenied reports whether err is ErrPermissionDenied.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// encodeFields turns every value into its JSON form so all backends store
// the same document shape.
func encodeFields(fields map[string]any) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(fields))
	for name, value := range fields {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode field %s", name)
		}
		out[name] = raw
	}
	return out, nil
}

// decodeDocument builds a Document from per-field JSON values.
func decodeDocument(fields map[string]json.RawMessage) (*models.Document, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.Wrap(err, "failed to assemble document")
	}
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to decode document")
	}
	return &doc, nil
}
