package embed

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lower scheme and host", in: "HTTPS://Example.COM/Path", want: "https://example.com/Path"},
		{name: "default port", in: "http://example.com:80/a", want: "http://example.com/a"},
		{name: "keeps other port", in: "https://example.com:8443/a", want: "https://example.com:8443/a"},
		{name: "empty path", in: "https://example.com", want: "https://example.com/"},
		{name: "strips tracking", in: "https://example.com/a?utm_source=x&id=3&fbclid=abc&UTM_Medium=y", want: "https://example.com/a?id=3"},
		{name: "sorts query", in: "https://example.com/a?b=2&a=1", want: "https://example.com/a?a=1&b=2"},
		{name: "drops fragment and userinfo", in: "https://user:pw@example.com/a#top", want: "https://example.com/a"},
		{name: "www prefix", in: "www.example.com/x", want: "http://www.example.com/x"},
		{name: "only tracking params", in: "https://example.com/?utm_campaign=z", want: "https://example.com/"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got.String(), tt.want)
			}
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "ftp://example.com/file", "javascript:alert(1)", "https:///nohost"} {
		if _, err := Normalize(in); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("Normalize(%q) err = %v, want ErrInvalidURL", in, err)
		}
	}
}

func TestParseImgurPath(t *testing.T) {
	t.Parallel()

	cases := map[string][2]string{
		"/a/AbC12":                {"album", "AbC12"},
		"/gallery/XyZ99":          {"gallery", "XyZ99"},
		"/q1w2e3r":                {"image", "q1w2e3r"},
		"/a/":                     {"", ""},
		"/user/someone/favorites": {"", ""},
	}
	for in, want := range cases {
		kind, id := parseImgurPath(in)
		if kind != want[0] || id != want[1] {
			t.Fatalf("parseImgurPath(%q) = (%q, %q), want (%q, %q)", in, kind, id, want[0], want[1])
		}
	}
}

func TestYouTubeVideoID(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ":                "dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ":  "dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=short":       "",
		"https://www.youtube.com/channel/abc":         "",
	}
	for in, want := range cases {
		u, err := Normalize(in)
		if err != nil {
			t.Fatalf("normalize %q: %v", in, err)
		}
		if got := youtubeVideoID(u); got != want {
			t.Fatalf("youtubeVideoID(%q) = %q, want %q", in, got, want)
		}
	}
}
