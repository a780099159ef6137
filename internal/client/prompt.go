package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm asks a yes/no question on r. Anything but y/yes is a no.
func Confirm(r io.Reader, question string) bool {
	fmt.Printf("  %s%s [y/N]:%s ", ColorBold, question, ColorReset)
	answer, _ := bufio.NewReader(r).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
