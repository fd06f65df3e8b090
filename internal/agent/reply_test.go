package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractReply(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"single span", "<reply>Hello</reply>", "Hello"},
		{"discards monologue", "thinking...\n<reply>Answer</reply>\nmore thinking", "Answer"},
		{"multiple spans joined", "<reply>one</reply>x<reply>two</reply>", "one\ntwo"},
		{"trims whitespace", "<reply>  padded \n</reply>", "padded"},
		{"drops empty spans", "<reply>  </reply><reply>keep</reply>", "keep"},
		{"multiline span", "<reply>line1\nline2</reply>", "line1\nline2"},
		{"no spans", "just internal reasoning", ""},
		{"empty input", "", ""},
		{"case sensitive tags", "<Reply>nope</Reply>", ""},
		{"ungreedy", "<reply>a</reply> junk <reply>b</reply>", "a\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractReply(tt.raw))
		})
	}
}

func TestExtractReply_Idempotent(t *testing.T) {
	once := ExtractReply("noise <reply>stable</reply> noise")
	assert.Equal(t, once, ExtractReply("<reply>"+once+"</reply>"))
}
