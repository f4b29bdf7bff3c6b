package transfer

import (
	"encoding/json"
	"fmt"

	"github.com/glorpus-work/modelkeep/pkg/errutils"
)

// Token is the serialized state of a suspended transfer.
type Token struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Dest   string `json:"dest"`
	Offset int64  `json:"offset"`
	Total  int64  `json:"total,omitempty"`
	ETag   string `json:"etag,omitempty"`
}

// Encode returns the JSON form of the token.
func (t Token) Encode() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, errutils.Wrap(err, "encode resume token")
	}
	return data, nil
}

// DecodeToken parses a resume token.
func DecodeToken(data []byte) (Token, error) {
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return Token{}, fmt.Errorf("%w: %v", errutils.ErrInvalidResumeToken, err)
	}
	if t.URL == "" {
		return Token{}, fmt.Errorf("%w: missing url", errutils.ErrInvalidResumeToken)
	}
	if t.Offset < 0 {
		return Token{}, fmt.Errorf("%w: negative offset", errutils.ErrInvalidResumeToken)
	}
	return t, nil
}
