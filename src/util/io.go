package util

import (
	"bufio"
	"fmt"
	"io/ioutil"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Writer buffers output in a strings.Builder. When the Flush or Close method
// is called the buffer is emptied and sent to the assigned output writer
// through channel c. A Writer created by NewBuffer has no output channel and
// keeps its contents until Detach or String is called; the code generator
// uses such writers to stage function bodies so that the prologue frame size
// can be patched after the body is generated.
type Writer struct {
	sb strings.Builder
	c  chan string
}

// -------------------
// ----- Globals -----
// -------------------

var wc chan string     // Write channel used for receiving generated assembly.
var cc chan error      // Close channel used by main thread to signal to end write operations.
var wg *sync.WaitGroup // Used for synchronising when I/O finished writing to output.

// ---------------------
// ----- Functions -----
// ---------------------

// Write writes a format string to the Writer's buffer.
func (w *Writer) Write(format string, args ...interface{}) {
	w.sb.WriteString(fmt.Sprintf(format, args...))
}

// WriteString writes a plain string to the Writer's buffer.
func (w *Writer) WriteString(s string) {
	w.sb.WriteString(s)
}

// Ins1 writes a one-line instruction using the operator and single operand.
func (w *Writer) Ins1(op, rs1 string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%s\n", op, rs1))
}

// Ins2 writes a one-line instruction using the operator, destination register and single source register.
func (w *Writer) Ins2(op, rd, rs1 string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%s, %s\n", op, rd, rs1))
}

// Ins2imm writes a one-line instruction using the operator, destination register, single source register and
// signed immediate.
func (w *Writer) Ins2imm(op, rd, rs1 string, imm int) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%s, %s, %d\n", op, rd, rs1, imm))
}

// Ins3 writes a one-line instruction using the operator, destination register and two source registers.
func (w *Writer) Ins3(op, rd, rs1, rs2 string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%s, %s, %s\n", op, rd, rs1, rs2))
}

// LoadStore writes a load or store instruction of register reg with offset to the register pointer (usually sp or fp).
func (w *Writer) LoadStore(op, reg string, offset int, pointer string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\t%s, %d(%s)\n", op, reg, offset, pointer))
}

// Label writes a one-line label with the given name.
func (w *Writer) Label(name string) {
	w.sb.WriteString(fmt.Sprintf("%s:\n", name))
}

// String returns the current contents of the Writer's buffer.
func (w *Writer) String() string {
	return w.sb.String()
}

// Detach empties the Writer's buffer and returns its contents without
// sending anything to the output listener.
func (w *Writer) Detach() string {
	s := w.sb.String()
	w.sb = strings.Builder{}
	return s
}

// Flush empties the Writer's buffer and sends the buffer data to the
// designated output writer over the Writer's channel. Flushing a buffer
// writer is a no-op; the contents stay until Detach is called.
func (w *Writer) Flush() {
	if w.c == nil {
		return
	}
	w.c <- w.sb.String()
	w.sb = strings.Builder{}
}

// Close flushes the Writer's buffer and then detaches the Writer from the
// output channel; the channel itself stays open.
func (w *Writer) Close() {
	if w.c == nil {
		return
	}
	w.Flush()
	w.c = nil
	wg.Done()
}

// NewWriter returns a new Writer connected to the output listener.
// Must not be called before ListenWrite.
func NewWriter() Writer {
	wg.Add(1)
	return Writer{
		sb: strings.Builder{},
		c:  wc,
	}
}

// NewBuffer returns a detached Writer that holds its contents in memory.
func NewBuffer() Writer {
	return Writer{sb: strings.Builder{}}
}

// ReadSource reads source code from the file given by the Options structure.
func ReadSource(opt Options) (string, error) {
	if len(opt.Src) == 0 {
		return "", errors.New("no source file given")
	}
	b, err := ioutil.ReadFile(opt.Src)
	if err != nil {
		return "", errors.Wrapf(err, "could not read source file %q", opt.Src)
	}
	return string(b), nil
}

// ListenWrite listens for generated output. The received data is written to either file
// if File pointer f is not nil or stdout if File pointer f is nil. The function loops until
// a termination signal is sent using the Close function.
func ListenWrite(opt Options, f *os.File, wgg *sync.WaitGroup) {
	wg = wgg
	// Unbuffered, so that a send returns only once the listener has taken
	// the data and Close returns only after every earlier write finished.
	wc = make(chan string)
	cc = make(chan error)
	var w *bufio.Writer
	if f != nil {
		// Write output to file.
		w = bufio.NewWriter(f)
	} else {
		// Write output to stdout.
		w = bufio.NewWriter(os.Stdout)
	}

	// Listen for input and termination signal.
	go func(wc chan string, cc chan error) {
		defer close(wc)
		defer close(cc)
		for {
			select {
			case s := <-wc:
				if _, err := w.WriteString(s); err != nil {
					fmt.Fprintln(os.Stderr, err)
				}
				if err := w.Flush(); err != nil {
					fmt.Fprintln(os.Stderr, err)
				}
			case <-cc:
				return
			}
		}
	}(wc, cc)
}

// Close sends the termination signal to the writer listener.
func Close() {
	cc <- nil
}
