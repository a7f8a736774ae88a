package policy

import "strings"

// Rules holds merchant allow and block lists. Both lists match by
// case-insensitive exact comparison of the merchant identifier.
//
// A nil *Rules allows every merchant.
type Rules struct {
	AllowList []string `json:"allow,omitempty" yaml:"allow,omitempty"`
	BlockList []string `json:"block,omitempty" yaml:"block,omitempty"`
}

// IsBlocked reports whether merchant appears on the block list.
func (r *Rules) IsBlocked(merchant string) bool {
	if r == nil {
		return false
	}
	return contains(r.BlockList, merchant)
}

// IsAuthorized reports whether merchant passes the allow list; an empty list
// authorizes everyone.
func (r *Rules) IsAuthorized(merchant string) bool {
	if r == nil || len(r.AllowList) == 0 {
		return true
	}
	return contains(r.AllowList, merchant)
}

// IsAllowed evaluates BlockList then AllowList. BlockList has priority.
func (r *Rules) IsAllowed(merchant string) bool {
	return !r.IsBlocked(merchant) && r.IsAuthorized(merchant)
}

func contains(list []string, merchant string) bool {
	normalized := strings.ToLower(strings.TrimSpace(merchant))
	for _, candidate := range list {
		if normalized == strings.ToLower(strings.TrimSpace(candidate)) {
			return true
		}
	}
	return false
}
