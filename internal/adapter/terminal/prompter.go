package terminal

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Prompter writes onboarding notes to a terminal.
type Prompter struct {
	mu       sync.Mutex
	out      io.Writer
	progress int
}

// NewPrompter creates a Prompter writing to out.
func NewPrompter(out io.Writer) *Prompter {
	return &Prompter{out: out}
}

// Note prints a boxed message under a styled title.
func (p *Prompter) Note(message, title string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.progress > 0 {
		fmt.Fprintln(p.out)
		p.progress = 0
	}
	box := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle(title).Render(title),
		textMuted.Render(message),
	)
	fmt.Fprintln(p.out, noteBox.Render(box))
}

// Progress prints one dot per unsuccessful poll.
func (p *Prompter) Progress() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress++
	fmt.Fprint(p.out, ".")
}
