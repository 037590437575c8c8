package process

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxScriptSize is the largest request the driver accepts.
const maxScriptSize = 10_000_000

// doneMarker ends the output of one script on stdout and on stderr.
const doneMarker = "\x00SCRIPTVM_DONE\x00"

// writeRequest sends one script as "<len>\n<source>".
func writeRequest(w io.Writer, source string) error {
	if _, err := fmt.Fprintf(w, "%d\n%s", len(source), source); err != nil {
		return fmt.Errorf("send script: %w", err)
	}
	return nil
}

// readReply reads one "<exit code>\n" line.
func readReply(r *bufio.Reader) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("read reply: %w", err)
	}
	code, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("malformed reply %q: %w", line, err)
	}
	return code, nil
}

// splitMarker reports whether line, including its newline, closes a script's
// output. prefix is whatever the script printed before the marker without a
// trailing newline.
func splitMarker(line string) (prefix string, done bool) {
	body := strings.TrimSuffix(line, "\n")
	if !strings.HasSuffix(body, doneMarker) {
		return line, false
	}
	return strings.TrimSuffix(body, doneMarker), true
}
