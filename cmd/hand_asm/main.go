// Command hand_asm takes a filename and produces a bin file from parsing the
// output as a hand assembled file of the form:
//
// XXXX OP A1 A2 ....
//
// Where XXXX is the address field and OP is the opcode; A1,A2 are
// optional params as needed. A line with more than two params is rejected.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

var offset = flag.Int("offset", 0x0000, "Offset to start writing assembled data. Everything prior is zero filled.")

func main() {
	flag.Parse()
	if len(flag.Args()) != 2 {
		log.Fatalf("Invalid command: %s <input> <output>", os.Args[0])
	}
	fn := flag.Args()[0]
	out := flag.Args()[1]

	lines, err := extractOpcodeLines(fn)
	if err != nil {
		log.Fatalf("Can't open and process %q for input - %v", fn, err)
	}
	output, err := assemble(lines, *offset)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := writeFile(out, output); err != nil {
		log.Fatalf("%v", err)
	}
}

// extractOpcodeLines shells out to strip a hand-assembled listing down to
// its "OP A1 A2 A3" token lines: egrep selects lines beginning with a 4 hex
// digit address, sed drops any trailing comment/tab annotation, and cut
// removes the leading address field itself.
func extractOpcodeLines(fn string) ([]string, error) {
	b, err := exec.Command("/bin/sh", "-c", fmt.Sprintf(`egrep ^[0-9A-F][0-9A-F][0-9A-F][0-9A-F] %s | sed -e 's:\t.*$::' -e 's:(\*).*$::'| cut -c6-`, fn)).Output()
	if err != nil {
		return nil, err
	}
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// assemble turns preprocessed "OP A1 A2" hex-token lines into a flat byte
// image, zero-filling offset bytes before the assembled data.
func assemble(lines []string, offset int) ([]byte, error) {
	output := make([]byte, offset)
	for l, t := range lines {
		toks := strings.Split(t, " ")
		if len(toks) > 3 {
			return nil, fmt.Errorf("invalid line %d - %q", l+1, t)
		}
		for _, v := range toks {
			b, err := strconv.ParseUint(v, 16, 8)
			if err != nil {
				return nil, fmt.Errorf("can't process input line %d %q - %v", l+1, t, err)
			}
			output = append(output, byte(b))
		}
	}
	return output, nil
}

// writeFile writes output to a newly created file at path, failing on any
// short write.
func writeFile(path string, output []byte) error {
	of, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("can't open output %q - %v", path, err)
	}
	n, err := of.Write(output)
	if err != nil {
		return fmt.Errorf("got error writing to %q - %v", path, err)
	}
	if got, want := n, len(output); got != want {
		return fmt.Errorf("short write to %q. Got %d and want %d", path, got, want)
	}
	return of.Close()
}
