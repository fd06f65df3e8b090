package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHardMention_AtForm(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"@Andy check this", true},
		{"hey @andy what's up", true},
		{"ping @ANDY now", true},
		{"mid sentence @Andy, yes", true},
		{"no mention here", false},
		{"email andy@example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHardMention(tt.text, "Andy"))
		})
	}
}

func TestIsHardMention_SentenceInitial(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Andy what do you think?", true},
		{"andy, come here", true},
		{"Andy", true},
		{"ok. Andy can you check", true},
		{"seriously?! Andy help", true},
		{"first line\nAndy second line", true},
		{"wait...Andy?", true},
		{"I told Andy yesterday", false},
		{"the Andyman cometh", false},
		{"Andyman is not his name. Andy is", true},
		{"handy tool", false},
		{"Brandy is a drink", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHardMention(tt.text, "Andy"), "text=%q", tt.text)
		})
	}
}

func TestIsHardMention_Superstring(t *testing.T) {
	assert.False(t, IsHardMention("Andyman strikes again", "Andy"))
	assert.False(t, IsHardMention("Andy's dog barked", "Andy"))
}

func TestIsHardMention_EmptyName(t *testing.T) {
	assert.False(t, IsHardMention("anything", ""))
}

func TestFindHardMentions(t *testing.T) {
	names := []string{"Ressu", "Tyko"}

	got := FindHardMentions("@Tyko what?", names)
	assert.Equal(t, []string{"Tyko"}, got)

	got = FindHardMentions("Ressu, meet @Tyko", names)
	assert.Equal(t, []string{"Ressu", "Tyko"}, got)

	got = FindHardMentions("nothing for anyone", names)
	assert.Empty(t, got)
}
