package retriever

import (
	"strings"

	"github.com/tracyhatemice/gomailcode/internal/mailbox"
)

// matchesRecipient reports whether a message is addressed to hint. The
// full hint or its local part (before any "+tag" or "@") must appear,
// ignoring case, in the recipient list or in the body. An empty hint
// matches everything.
func matchesRecipient(meta mailbox.MessageMeta, body, hint string) bool {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return true
	}

	needles := []string{hint}
	if lp := localPart(hint); lp != "" && lp != hint {
		needles = append(needles, lp)
	}

	haystacks := make([]string, 0, len(meta.Recipients)+1)
	for _, r := range meta.Recipients {
		haystacks = append(haystacks, strings.ToLower(r))
	}
	haystacks = append(haystacks, strings.ToLower(body))

	for _, h := range haystacks {
		for _, n := range needles {
			if strings.Contains(h, n) {
				return true
			}
		}
	}
	return false
}

func localPart(addr string) string {
	if i := strings.IndexAny(addr, "+@"); i >= 0 {
		return addr[:i]
	}
	return addr
}
