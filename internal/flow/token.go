package flow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/denisok6893-rgb/estatebot/internal/domain"
)

// ErrInvalidSelection is any selection token that does not lead back to exactly one record.
var ErrInvalidSelection = errors.New("invalid selection")

const (
	tokenSep      = ":"
	tokenByKey    = "k"
	tokenByID     = "i"
	labelEllipsis = "…"
)

// selection is a decoded choice token.
type selection struct {
	action Action
	key    string
	id     int
}

// encodeToken carries the display key when it fits in limit bytes and the project id
// otherwise. used holds the tokens handed out so far in the same list.
func encodeToken(a Action, p domain.Project, limit int, used map[string]bool) string {
	tok := string(a) + tokenSep + tokenByKey + tokenSep + p.NameIDBuildings
	if len(tok) <= limit && !used[tok] {
		return tok
	}
	return string(a) + tokenSep + tokenByID + tokenSep + strconv.Itoa(p.ProjectID)
}

func decodeToken(tok string) (selection, error) {
	parts := strings.SplitN(tok, tokenSep, 3)
	if len(parts) != 3 {
		return selection{}, fmt.Errorf("%w: token %q", ErrInvalidSelection, tok)
	}
	a, ok := parseAction(parts[0])
	if !ok {
		return selection{}, fmt.Errorf("%w: action in %q", ErrInvalidSelection, tok)
	}
	switch parts[1] {
	case tokenByKey:
		if parts[2] == "" {
			return selection{}, fmt.Errorf("%w: empty key", ErrInvalidSelection)
		}
		return selection{action: a, key: parts[2]}, nil
	case tokenByID:
		id, err := strconv.Atoi(parts[2])
		if err != nil || id <= 0 {
			return selection{}, fmt.Errorf("%w: id in %q", ErrInvalidSelection, tok)
		}
		return selection{action: a, id: id}, nil
	default:
		return selection{}, fmt.Errorf("%w: kind in %q", ErrInvalidSelection, tok)
	}
}

// IsToken reports whether data looks like a choice token, so transports can route callbacks.
func IsToken(data string) bool {
	_, err := decodeToken(data)
	return err == nil
}

// truncateLabel cuts s to at most limit runes, marking the cut with an ellipsis.
func truncateLabel(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	if limit == 1 {
		return string(r[:1])
	}
	return string(r[:limit-1]) + labelEllipsis
}
