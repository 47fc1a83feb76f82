package extract

import (
	"strings"
	"testing"
)

func TestFromHTML_HeadingAndDescription(t *testing.T) {
	c := FromHTML(`<div role="dialog">
		<h2>Team sync</h2>
		<div>Weekly alignment with the platform group, bring your updates.</div>
		<button>Edit</button>
	</div>`)

	if c.Title != "Team sync" {
		t.Errorf("title: got %q", c.Title)
	}
	if !strings.Contains(c.Description, "Weekly alignment") {
		t.Errorf("description: got %q", c.Description)
	}
}

func TestFromHTML_RoleHeadingFallback(t *testing.T) {
	c := FromHTML(`<div><span role="heading">1:1 with Dana</span><div>Room 4B</div></div>`)
	if c.Title != "1:1 with Dana" {
		t.Errorf("title: got %q", c.Title)
	}
}

func TestFromHTML_SanitizesDescription(t *testing.T) {
	c := FromHTML(`<div>
		<h1>Launch review</h1>
		<div>Agenda follows <script>alert(1)</script>the usual structure with extra slots.</div>
	</div>`)

	if strings.Contains(c.Description, "alert") {
		t.Errorf("script content leaked into description: %q", c.Description)
	}
	if !strings.Contains(c.Description, "usual structure") {
		t.Errorf("description lost its text: %q", c.Description)
	}
}

func TestFromHTML_BestEffortOnJunk(t *testing.T) {
	for _, in := range []string{"", "<not even html", "<div></div>"} {
		c := FromHTML(in)
		if c.Title != "" && in != "" {
			t.Errorf("FromHTML(%q) invented a title: %q", in, c.Title)
		}
	}
}

func TestFromHTML_ButtonsAreNotContent(t *testing.T) {
	c := FromHTML(`<div>
		<h3>Standup</h3>
		<button>A very long button label that should never be mistaken for the description text</button>
		<div>Daily.</div>
	</div>`)
	if strings.Contains(c.Description, "button label") {
		t.Errorf("button text treated as description: %q", c.Description)
	}
}
