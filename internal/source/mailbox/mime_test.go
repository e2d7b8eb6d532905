package mailbox

import (
	"strings"
	"testing"
)

func TestExtractTextBodyPlain(t *testing.T) {
	raw := strings.Join([]string{
		"From: sender@example.com",
		"To: user@example.com",
		"Subject: hello",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"plain body text",
		"",
	}, "\r\n")

	got := extractTextBody([]byte(raw))
	if got != "plain body text" {
		t.Errorf("extractTextBody = %q", got)
	}
}

func TestExtractTextBodyPrefersPlainOverHTML(t *testing.T) {
	raw := strings.Join([]string{
		"From: sender@example.com",
		"To: user@example.com",
		"Subject: hello",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"the plain part",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>the html part</p>",
		"--b1--",
		"",
	}, "\r\n")

	got := extractTextBody([]byte(raw))
	if got != "the plain part" {
		t.Errorf("extractTextBody = %q; want the text/plain part", got)
	}
}

func TestExtractTextBodyFallsBackToStrippedHTML(t *testing.T) {
	raw := strings.Join([]string{
		"From: sender@example.com",
		"To: user@example.com",
		"Subject: hello",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<div>first line</div><p>second &amp; third</p>",
		"",
	}, "\r\n")

	got := extractTextBody([]byte(raw))
	if strings.Contains(got, "<") {
		t.Errorf("HTML tags survived: %q", got)
	}
	if !strings.Contains(got, "second & third") {
		t.Errorf("entities not decoded: %q", got)
	}
}

func TestExtractTextBodyUnparsableDegrades(t *testing.T) {
	got := extractTextBody([]byte("not a mime message at all"))
	if got != "not a mime message at all" {
		t.Errorf("extractTextBody = %q; want raw fallback", got)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<b>bold</b> text", "bold text"},
		{"a<br>b<br/>c", "a\nb\nc"},
		{"&lt;tag&gt; &amp; &quot;quote&quot;", `<tag> & "quote"`},
		{"", ""},
	}
	for _, tc := range tests {
		if got := stripHTML(tc.in); got != tc.want {
			t.Errorf("stripHTML(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
