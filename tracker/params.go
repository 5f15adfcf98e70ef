package tracker

import "strconv"

// Params is the parameter mapping the transport layer parses from a
// request's query string and hands to Announce/Scrape. Keys are the
// query parameter names, unescaped and lower-cased; values are raw,
// unescaped strings — including binary ones like info_hash and peer_id.
type Params map[string]string

// requireUint parses key as a non-negative base-10 integer with no sign
// character, per the announce validation pipeline's rule that
// port/uploaded/downloaded/left must be plain decimal digit strings.
func (p Params) requireUint(key string) (uint64, bool) {
	raw, ok := p[key]
	if !ok || raw == "" {
		return 0, false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// requireBytes returns the raw value for key, requiring it be exactly n
// bytes long.
func (p Params) requireBytes(key string, n int) (string, bool) {
	raw, ok := p[key]
	if !ok || len(raw) != n {
		return "", false
	}
	return raw, true
}

func (p Params) bool(key string) bool {
	v, ok := p[key]
	return ok && v != "" && v != "0"
}
