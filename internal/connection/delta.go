package connection

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/ikommunicate-connector/internal/model"
)

// TagDelta decodes one frame and stamps it with the self context. Members
// other than "context" are kept as received.
func TagDelta(data []byte) (model.Delta, error) {
	var delta model.Delta
	if err := json.Unmarshal(data, &delta); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, ErrInvalidDelta
		}
		return nil, fmt.Errorf("decode delta: %w", err)
	}
	if delta == nil {
		// JSON null
		return nil, ErrInvalidDelta
	}
	delta.SetContext(model.SelfContext)
	return delta, nil
}
