package kernelcli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/quaylabs/capkernel/kernelerrors"
)

var (
	styleDenied  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleDetail  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// reportDenial writes a reason string to w after a styled "denied:" label.
// The reason is printed as given; it is not resolved back to a KernelError,
// so no suggestion or context is shown (formatKernelError does that for an
// error value).
func reportDenial(w io.Writer, reason string) {
	fmt.Fprintf(w, "%s %s\n", styleDenied.Render("denied:"), reason)
}

func reportSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", styleOK.Render("ok:"), message)
}

func reportDetail(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", styleDetail.Render(fmt.Sprintf(format, args...)))
}

// formatKernelError renders a KernelError the way FormatErrorWithSuggestion
// does in the teacher's cli package: message, then an actionable
// suggestion, then any structured context.
func formatKernelError(w io.Writer, err error) {
	ke, ok := kernelerrors.As(err)
	if !ok {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "%s %s\n", styleDenied.Render(ke.Code()+":"), ke.Error())
	if s := ke.Suggestion(); s != "" {
		fmt.Fprintf(w, "%s %s\n", styleWarn.Render("suggestion:"), s)
	}
	for k, v := range ke.Context() {
		reportDetail(w, "%s: %s", k, v)
	}
}
