package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"

	"rvcc/src/backend"
	"rvcc/src/frontend"
	"rvcc/src/ir"
	"rvcc/src/util"
)

// run begins reading source code and executes compiler stages.
// Behaviour is defined by the util.Options structure.
func run(opt util.Options) error {
	// Read source code.
	src, err := util.ReadSource(opt)
	if err != nil {
		return errors.Wrap(err, "could not read source code")
	}

	// If -ts flag was passed: output token stream and exit.
	if opt.TokenStream {
		wr := util.NewWriter()
		defer wr.Close()
		if err := frontend.TokenStream(src, &wr); err != nil {
			return errors.Wrap(err, "syntax error")
		}
		return nil
	}

	// Build the syntax tree; expression sites go through the expression
	// builder, which validates types and folds constants.
	ctx := ir.NewContext()
	unit, err := frontend.Parse(src, ctx)
	if err != nil {
		return errors.Wrap(err, "parse error")
	}

	// Surface every posted diagnostic; never generate code after an error.
	for _, e1 := range ctx.Rep.Errors() {
		fmt.Fprintln(os.Stderr, e1)
	}
	if ctx.Rep.WasError {
		return errors.New("compilation failed")
	}

	// Generate assembler.
	wr := util.NewWriter()
	if err := backend.GenerateAssembler(opt, ctx, unit, &wr); err != nil {
		wr.Close()
		return errors.Wrap(err, "code generation error")
	}
	wr.Close()

	if opt.Verbose {
		fmt.Printf("identifiers: %d, strings: %d\n", ctx.Idents.Amount(), ctx.Strings.Amount())
	}
	return nil
}

func main() {
	// Parse command line arguments.
	opt, err := util.ParseArgs()
	if err != nil {
		fmt.Printf("Command line argument error: %s\n", err)
		os.Exit(1)
	}

	// Initiate output writer.
	wg := sync.WaitGroup{}
	var f *os.File
	if len(opt.Out) > 0 {
		// Attempt to open output file. Create new file if necessary.
		if f, err = os.OpenFile(opt.Out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		defer func(f *os.File) {
			if err := f.Close(); err != nil {
				fmt.Println(err)
			}
		}(f)
	}
	util.ListenWrite(opt, f, &wg)

	status := 0
	if err := run(opt); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		status = 1
	}

	// Wait for code generation output to be flushed.
	wg.Wait()
	util.Close()
	os.Exit(status)
}
