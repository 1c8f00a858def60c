package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"khwaaish/pkg/automation"
	"khwaaish/pkg/chatlog"
)

// QuantityFunc reports the current cart quantity for a product.
type QuantityFunc func(automation.Product) int

// Terminal draws views for a line-oriented chat.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer

	user     lipgloss.Style
	system   lipgloss.Style
	bold     lipgloss.Style
	title    lipgloss.Style
	card     lipgloss.Style
	selected lipgloss.Style
	muted    lipgloss.Style
	success  lipgloss.Style
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{
		out:      out,
		user:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		system:   lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true),
		bold:     lipgloss.NewStyle().Bold(true),
		title:    lipgloss.NewStyle().Bold(true).Underline(true),
		card:     lipgloss.NewStyle().PaddingLeft(2),
		selected: lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("42")).Bold(true),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		success: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("42")).
			Padding(0, 1),
	}
}

// Print writes one transcript entry. qty may be nil when no cart applies.
func (t *Terminal) Print(msg chatlog.Message, qty QuantityFunc) {
	var body string
	if msg.Role == chatlog.RoleUser {
		body = t.user.Render("you") + " " + msg.Content
	} else {
		body = t.system.Render("khwaaish") + " " + t.View(Render(msg.Content), qty)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, body)
}

// View renders v to a string.
func (t *Terminal) View(v View, qty QuantityFunc) string {
	switch v.Kind {
	case KindProductList, KindHotelList:
		return t.list(v, qty)
	case KindBookingSuccess, KindOrderSuccess, KindSwiggyCheckout, KindConfirmation:
		return t.successBox(v)
	default:
		return t.text(v.Segments)
	}
}

func (t *Terminal) text(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		if s.Bold {
			b.WriteString(t.bold.Render(s.Text))
		} else {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

func (t *Terminal) list(v View, qty QuantityFunc) string {
	lines := []string{t.title.Render(v.Title)}
	if v.Message != "" {
		lines = append(lines, t.text(Format(v.Message)))
	}
	if len(v.Products) == 0 {
		lines = append(lines, t.muted.Render("  no results"))
	}
	for i, p := range v.Products {
		line := fmt.Sprintf("[%d] %s", i+1, p.Name)
		if p.Price != "" {
			line += "  ₹" + strings.TrimPrefix(p.Price, "₹")
		}
		if p.Source != "" {
			line += "  " + t.muted.Render("("+p.Source+")")
		}
		n := 0
		if qty != nil {
			n = qty(p)
		}
		if n > 0 {
			lines = append(lines, t.selected.Render(fmt.Sprintf("%s  x%d", line, n)))
		} else {
			lines = append(lines, t.card.Render(line))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (t *Terminal) successBox(v View) string {
	lines := []string{t.bold.Render(v.Title)}
	if v.Message != "" {
		lines = append(lines, t.text(Format(v.Message)))
	}
	for _, d := range v.Details {
		lines = append(lines, t.muted.Render(d.Label+": ")+d.Value)
	}
	return "\n" + t.success.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
