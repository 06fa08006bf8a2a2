package replication

import (
	"net/url"
	"testing"
)

func TestSessionKey(t *testing.T) {
	encoded := url.QueryEscape("BAh7B0kiD3Nlc3Npb25faWQGOgZFVA==\n--abc123")

	for _, tt := range []struct {
		name   string
		cookie string
		key    string
		want   string
		wantOK bool
	}{{
		name:   "no cookie header",
		cookie: "",
		key:    "rack.session",
	}, {
		name:   "other cookies only",
		cookie: "foo=bar; baz=qux",
		key:    "rack.session",
	}, {
		name:   "session cookie",
		cookie: "foo=bar; rack.session=" + encoded,
		key:    "rack.session",
		want:   "abc123",
		wantOK: true,
	}, {
		name:   "custom cookie name",
		cookie: "_app_session=" + encoded,
		key:    "_app_session",
		want:   "abc123",
		wantOK: true,
	}, {
		name:   "last delimiter wins",
		cookie: "rack.session=" + url.QueryEscape("a\n--b\n--c"),
		key:    "rack.session",
		want:   "c",
		wantOK: true,
	}, {
		name:   "first cookie of a name wins",
		cookie: "rack.session=" + url.QueryEscape("x\n--first") + "; rack.session=" + url.QueryEscape("x\n--second"),
		key:    "rack.session",
		want:   "first",
		wantOK: true,
	}, {
		name:   "quoted value",
		cookie: `rack.session="` + encoded + `"`,
		key:    "rack.session",
		want:   "abc123",
		wantOK: true,
	}, {
		name:   "no delimiter",
		cookie: "rack.session=plainvalue",
		key:    "rack.session",
	}, {
		name:   "empty identifier",
		cookie: "rack.session=" + url.QueryEscape("data\n--"),
		key:    "rack.session",
	}, {
		name:   "undecodable value",
		cookie: "rack.session=abc%zz%0A--id",
		key:    "rack.session",
	}, {
		name:   "prefix of another name",
		cookie: "rack.session.other=" + encoded,
		key:    "rack.session",
	}, {
		name:   "empty cookie name",
		cookie: "=" + encoded,
		key:    "",
	}, {
		name:   "garbage",
		cookie: ";;; =; rack.session",
		key:    "rack.session",
	}} {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SessionKey(tt.cookie, tt.key)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("SessionKey(%q, %q) = (%q, %v), want (%q, %v)", tt.cookie, tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
