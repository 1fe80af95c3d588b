package domain

import "strings"

// Platform identifies one external competitive-programming site
type Platform string

const (
	PlatformLeetCode   Platform = "leetcode"
	PlatformCodeforces Platform = "codeforces"
	PlatformCodeChef   Platform = "codechef"
	PlatformHackerRank Platform = "hackerrank"
)

// Platforms lists every supported platform in a stable order
var Platforms = []Platform{
	PlatformLeetCode,
	PlatformCodeforces,
	PlatformCodeChef,
	PlatformHackerRank,
}

// ParsePlatform normalizes a platform name and validates it against the fixed enum
func ParsePlatform(name string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(name)))
	if !p.Valid() {
		return "", ErrUnsupported
	}
	return p, nil
}

// Valid reports whether p is one of the supported platforms
func (p Platform) Valid() bool {
	switch p {
	case PlatformLeetCode, PlatformCodeforces, PlatformCodeChef, PlatformHackerRank:
		return true
	}
	return false
}

func (p Platform) String() string {
	return string(p)
}
