package cli

import (
	"bufio"
	"fmt"
	"strings"

	"rpl/internal/diag"
)

// prompter asks on the console whether to save each file. An empty answer
// means yes; end of input means no.
type prompter struct {
	in  *bufio.Reader
	out *diag.Console
}

func (p *prompter) Confirm(path string) bool {
	p.out.Print(fmt.Sprintf("\nSave \"%s\"? ([Y]/N) ", path))
	for {
		line, err := p.in.ReadString('\n')
		answer := strings.TrimSpace(line)
		switch {
		case answer == "" && err == nil, strings.HasPrefix(answer, "y"), strings.HasPrefix(answer, "Y"):
			p.out.Info("Saved")
			return true
		case strings.HasPrefix(answer, "n"), strings.HasPrefix(answer, "N"), err != nil:
			p.out.Info("Not saved")
			return false
		}
	}
}
