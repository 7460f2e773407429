package output

import (
	"fmt"
	"golang.org/x/term"
	"os"
)

// PrintRight overwrites the current line with text right-padded to the
// terminal width, for the headless status line's in-place refresh.
func PrintRight(text string) {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		width = 80
	}

	padding := width - len(text)
	if padding < 0 {
		padding = 0
	}

	fmt.Printf("\r%s%s", spaces(padding), text)
}

func spaces(n int) string {
	return fmt.Sprintf("%*s", n, "")
}
