// Command disasm loads a flat binary image and disassembles it to stdout
// starting at the given offset.
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/wkhenry/go6502/disasm"
	"github.com/wkhenry/go6502/memory"
)

var offset = flag.Int("offset", 0x0000, "Offset into RAM to start loading data. All other RAM will be zero'd out.")

func main() {
	flag.Parse()
	if len(flag.Args()) != 1 {
		log.Fatalf("Invalid command: %s [-offset <offset>] <filename>", os.Args[0])
	}
	fn := flag.Args()[0]

	b, err := ioutil.ReadFile(fn)
	if err != nil {
		log.Fatalf("Can't open %s - %v", fn, err)
	}
	max := 1<<16 - *offset
	if l := len(b); l > max {
		log.Printf("Length %d at offset %d too long, truncating to 64k", l, *offset)
		b = b[:max]
	}

	f := memory.NewRAM()
	for i, by := range b {
		f.Write(uint16(*offset+i), by)
	}

	pc := uint16(*offset)
	fmt.Printf("0x%.2X bytes at pc: %.4X\n", len(b), pc)
	cnt := 0
	for cnt < len(b) {
		dis, off := disasm.Step(pc, f)
		pc += uint16(off)
		cnt += off
		fmt.Printf("%s\n", dis)
	}
}
