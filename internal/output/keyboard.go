package output

import (
	"bufio"
	"io"

	"golang.org/x/term"
)

// RawTerminal puts stdin into raw mode for the duration of the dashboard
// session, restoring it on Close. golang.org/x/term is already the
// teacher's dependency for terminal sizing (output.go's PrintRight); this
// reuses it for the one extra capability the dashboard needs.
type RawTerminal struct {
	fd    int
	state *term.State
}

func EnterRaw(fd int) (*RawTerminal, error) {
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &RawTerminal{fd: fd, state: state}, nil
}

func (t *RawTerminal) Close() error {
	return term.Restore(t.fd, t.state)
}

// ReadKey decodes one keypress from r, including the two-/three-byte ANSI
// escape sequences for arrow keys. It blocks until a byte is available.
func ReadKey(r *bufio.Reader) (Key, error) {
	b, err := r.ReadByte()
	if err != nil {
		return Key{}, err
	}

	switch b {
	case '\r', '\n':
		return Key{Kind: KeyEnter}, nil
	case 0x7f, 0x08:
		return Key{Kind: KeyBackspace}, nil
	case 0x1b:
		return readEscapeSequence(r)
	default:
		return Key{Kind: KeyChar, Rune: rune(b)}, nil
	}
}

func readEscapeSequence(r *bufio.Reader) (Key, error) {
	b1, err := r.ReadByte()
	if err != nil {
		// A bare ESC with nothing buffered behind it is the Esc key.
		if err == io.EOF {
			return Key{Kind: KeyEsc}, nil
		}
		return Key{}, err
	}
	if b1 != '[' {
		return Key{Kind: KeyEsc}, nil
	}

	b2, err := r.ReadByte()
	if err != nil {
		return Key{}, err
	}

	switch b2 {
	case 'A':
		return Key{Kind: KeyUp}, nil
	case 'B':
		return Key{Kind: KeyDown}, nil
	default:
		return Key{Kind: KeyEsc}, nil
	}
}
