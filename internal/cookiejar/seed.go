package cookiejar

import "strings"

// Seed populates j from the lowest-precedence source (a Netscape cookie
// file) up through the highest (a literal cookie-header string), so that
// afterward any live Set-Cookie header captured during a fetch simply
// calls Add/AddFromSetCookieHeader and takes precedence over both.
func (j *Jar) Seed(cookieFile, cookieString string) error {
	if cookieFile != "" {
		if err := j.LoadNetscapeFileInto(cookieFile); err != nil {
			return err
		}
	}
	if cookieString != "" {
		for _, c := range ParseCookieHeader(cookieString) {
			j.Add(c)
		}
	}
	return nil
}

// ParseCookieHeader splits a "k=v; k2=v2" cookie header string into
// individual cookies with no domain/expiry metadata.
func ParseCookieHeader(header string) []Cookie {
	var out []Cookie
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out = append(out, Cookie{Name: strings.TrimSpace(kv[0]), Value: strings.TrimSpace(kv[1])})
	}
	return out
}
