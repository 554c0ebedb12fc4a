package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextBody(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    []string
		notWant []string
	}{
		{
			name: "plain text",
			raw: "Subject: code\r\n" +
				"Content-Type: text/plain; charset=utf-8\r\n" +
				"\r\n" +
				"Your code is 123456\r\n",
			want: []string{"Your code is 123456"},
		},
		{
			name: "no content type",
			raw:  "Subject: code\r\n\r\n987654\r\n",
			want: []string{"987654"},
		},
		{
			name: "quoted printable",
			raw: "Subject: code\r\n" +
				"Content-Type: text/plain; charset=utf-8\r\n" +
				"Content-Transfer-Encoding: quoted-printable\r\n" +
				"\r\n" +
				"Code=3A 314159\r\n",
			want: []string{"Code: 314159"},
		},
		{
			name: "multipart prefers plain text and skips attachments",
			raw: "Subject: code\r\n" +
				"MIME-Version: 1.0\r\n" +
				"Content-Type: multipart/mixed; boundary=XYZ\r\n" +
				"\r\n" +
				"--XYZ\r\n" +
				"Content-Type: text/plain\r\n" +
				"\r\n" +
				"plain 111222\r\n" +
				"--XYZ\r\n" +
				"Content-Type: text/html\r\n" +
				"\r\n" +
				"<b>333444</b>\r\n" +
				"--XYZ\r\n" +
				"Content-Type: application/octet-stream\r\n" +
				"Content-Disposition: attachment; filename=\"codes.bin\"\r\n" +
				"\r\n" +
				"555666\r\n" +
				"--XYZ--\r\n",
			want:    []string{"plain 111222"},
			notWant: []string{"333444", "555666"},
		},
		{
			name: "html only is rendered without markup or styles",
			raw: "Subject: code\r\n" +
				"Content-Type: text/html; charset=utf-8\r\n" +
				"\r\n" +
				"<html><head><style>p { color: #333333; }</style></head>" +
				"<body><p style=\"color:#444444\">Your code is</p><p><b>918273</b></p></body></html>\r\n",
			want:    []string{"Your code is\n918273"},
			notWant: []string{"333333", "444444", "<p>", "<b>"},
		},
		{
			name: "unparseable falls back to raw",
			raw:  "not a header line at all\x00\r\n424242",
			want: []string{"424242"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TextBody([]byte(tc.raw))
			for _, w := range tc.want {
				assert.Contains(t, got, w)
			}
			for _, nw := range tc.notWant {
				assert.NotContains(t, got, nw)
			}
		})
	}

	assert.Empty(t, TextBody(nil))
}
