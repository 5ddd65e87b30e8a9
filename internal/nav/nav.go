// Package nav decides which navigation controls to show for the current
// page and session, and renders them as a one-line bar.
package nav

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"medpredict/internal/session"
)

// Brand is the product name shown at the left of the bar.
const Brand = "HealthPredict"

// Kind distinguishes navigation links from the logout action.
type Kind int

const (
	Link Kind = iota
	LogoutAction
)

// Control is one clickable item.
type Control struct {
	Label   string
	Href    string
	Kind    Kind
	Primary bool
}

// Bar is the computed navigation state.
type Bar struct {
	Left  Control
	Right []Control
}

// Labels returns the right-hand control labels in order.
func (b Bar) Labels() []string {
	out := make([]string, len(b.Right))
	for i, c := range b.Right {
		out[i] = c.Label
	}
	return out
}

// IsAuthPage reports whether path is the login or signup page, where the
// auth controls would only point back at the page itself.
func IsAuthPage(path string) bool {
	return path == "/login" || path == "/signup"
}

// Build computes the bar for path. A back button replaces the brand and hides
// the auth controls; so does being on an auth page.
func Build(path string, back bool, st session.State) Bar {
	b := Bar{Left: Control{Label: Brand, Href: "/"}}
	if back {
		b.Left = Control{Label: "< Back to Home", Href: "/"}
		return b
	}
	if IsAuthPage(path) {
		return b
	}
	if st.IsAuthenticated() {
		b.Right = []Control{{Label: "Logout", Kind: LogoutAction}}
		return b
	}
	b.Right = []Control{
		{Label: "Login", Href: "/login"},
		{Label: "Register", Href: "/signup", Primary: true},
	}
	return b
}

// Logout ends the session and returns where to go next: home when leaving
// any other page, "" when already there.
func Logout(p *session.Provider, path string) string {
	p.Logout()
	if path != "/" {
		return "/"
	}
	return ""
}

var (
	brandStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ade80"))
	backStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	outlineStyle = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.NormalBorder(), false, true)
	primaryStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).
			Foreground(lipgloss.Color("0")).Background(lipgloss.Color("#4ade80"))
)

// Render draws the bar at the given width. A width too small for both sides
// puts a single space between them.
func Render(b Bar, width int) string {
	left := brandStyle.Render(b.Left.Label)
	if b.Left.Label != Brand {
		left = backStyle.Render(b.Left.Label)
	}

	parts := make([]string, 0, len(b.Right))
	for _, c := range b.Right {
		if c.Primary {
			parts = append(parts, primaryStyle.Render(c.Label))
		} else {
			parts = append(parts, outlineStyle.Render(c.Label))
		}
	}
	right := strings.Join(parts, " ")

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}
