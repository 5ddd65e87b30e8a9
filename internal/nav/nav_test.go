package nav

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"medpredict/internal/session"
	"medpredict/internal/storage"
)

func TestBuild(t *testing.T) {
	in := session.State{Token: "abc"}
	out := session.State{}

	tests := []struct {
		name string
		path string
		back bool
		st   session.State
		left string
		want []string
	}{
		{"home logged out", "/", false, out, Brand, []string{"Login", "Register"}},
		{"home logged in", "/", false, in, Brand, []string{"Logout"}},
		{"login page", "/login", false, out, Brand, []string{}},
		{"signup page", "/signup", false, in, Brand, []string{}},
		{"back button", "/diabetes", true, in, "< Back to Home", []string{}},
		{"inner page logged out", "/diabetes", false, out, Brand, []string{"Login", "Register"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Build(tt.path, tt.back, tt.st)
			assert.Equal(t, tt.left, b.Left.Label)
			assert.Equal(t, "/", b.Left.Href)
			assert.Equal(t, tt.want, b.Labels())
		})
	}
}

func TestBuild_LinkTargets(t *testing.T) {
	b := Build("/", false, session.State{})
	assert.Equal(t, "/login", b.Right[0].Href)
	assert.Equal(t, "/signup", b.Right[1].Href)
	assert.True(t, b.Right[1].Primary)

	b = Build("/", false, session.State{Token: "abc"})
	assert.Equal(t, LogoutAction, b.Right[0].Kind)
}

func TestLogout(t *testing.T) {
	p := session.New(storage.NewMemoryStore())

	p.Login("abc")
	assert.Equal(t, "/", Logout(p, "/heart"))
	assert.False(t, p.IsAuthenticated())

	p.Login("abc")
	assert.Equal(t, "", Logout(p, "/"))
	assert.False(t, p.IsAuthenticated())
}

func TestRender(t *testing.T) {
	line := Render(Build("/", false, session.State{}), 60)
	assert.Contains(t, line, Brand)
	assert.Contains(t, line, "Login")
	assert.Contains(t, line, "Register")
	assert.Equal(t, 60, lipgloss.Width(line))
	assert.False(t, strings.Contains(line, "\n"))

	line = Render(Build("/", false, session.State{Token: "t"}), 0)
	assert.Contains(t, line, "Logout")
	assert.NotContains(t, line, "Login")
}
