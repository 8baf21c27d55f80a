package httpclient

import (
	"net/url"
	"strings"
)

// sensitiveParams are query keys whose values never reach the logs.
// HLS CDNs commonly sign manifest and segment URLs with these.
var sensitiveParams = map[string]struct{}{
	"password": {}, "passwd": {}, "pass": {}, "pwd": {},
	"token": {}, "api_key": {}, "apikey": {}, "key": {},
	"secret": {}, "auth": {}, "authorization": {},
	"signature": {}, "sig": {}, "hdnts": {}, "hdnea": {},
	"policy": {}, "key-pair-id": {}, "credential": {}, "credentials": {},
}

// ObfuscateURL returns u as a string with credentials and signing parameters
// masked. Userinfo passwords are masked as well.
func ObfuscateURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	sanitized := *u
	if sanitized.User != nil {
		if _, hasPassword := sanitized.User.Password(); hasPassword {
			sanitized.User = url.UserPassword(sanitized.User.Username(), "***")
		}
	}

	query := sanitized.Query()
	changed := false
	for name := range query {
		if _, ok := sensitiveParams[strings.ToLower(name)]; ok {
			query.Set(name, "***")
			changed = true
		}
	}
	if changed {
		sanitized.RawQuery = query.Encode()
	}
	return sanitized.String()
}

// ObfuscateString parses raw and obfuscates it. Unparseable input is
// returned with any query string dropped.
func ObfuscateString(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexByte(raw, '?'); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	return ObfuscateURL(u)
}
