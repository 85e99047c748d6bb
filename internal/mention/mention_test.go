package mention

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	members := []string{"alice", "bob", "민수", "dev-ops"}

	tests := []struct {
		name string
		body string
		want []string
	}{
		{"none", "hello everyone", []string{}},
		{"single", "hi @bob", []string{"bob"}},
		{"dedup", "@bob @bob @alice", []string{"bob", "alice"}},
		{"non member dropped", "@carol and @alice", []string{"alice"}},
		{"hangul", "안녕 @민수!", []string{"민수"}},
		{"hyphen", "ping @dev-ops.", []string{"dev-ops"}},
		{"email like", "mail bob@alice", []string{"alice"}},
		{"bare at", "@ alone", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, Parse(tt.body, members))
		})
	}
}

func TestParse_NoMembers(t *testing.T) {
	assert.Empty(t, Parse("@alice", nil))
}

func TestCandidates(t *testing.T) {
	assert.Equal(t, []string{"a", "b_c"}, Candidates("@a @b_c @a"))
	assert.Nil(t, Candidates("no mentions"))
}

func TestValidNickname(t *testing.T) {
	assert.True(t, ValidNickname("alice_1"))
	assert.True(t, ValidNickname("김철수"))
	assert.True(t, ValidNickname("a-b"))
	assert.False(t, ValidNickname(""))
	assert.False(t, ValidNickname("has space"))
	assert.False(t, ValidNickname(`quo"te`))
	assert.False(t, ValidNickname("@alice"))
}
