// defode compiles an ODE model description into C or Go source.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/defode/gogen"
	"github.com/chazu/defode/modelfile"
	"github.com/chazu/defode/ode"
	"github.com/chazu/defode/snapshot"
)

var log = commonlog.GetLogger("defode")

// options holds the parsed command line.
type options struct {
	Input       string
	Lang        string
	Package     string
	Output      string
	Snapshot    string
	Prefix      string
	Fingerprint bool
}

func main() {
	var opts options
	flag.StringVar(&opts.Lang, "lang", "", "Output language: c or go (default from the model file, else c)")
	flag.StringVar(&opts.Package, "pkg", "", "Package name for Go output")
	flag.StringVar(&opts.Output, "o", "", "Output file (default stdout)")
	flag.StringVar(&opts.Snapshot, "snapshot", "", "Also write a CBOR snapshot of the model to this file")
	flag.StringVar(&opts.Prefix, "prefix", "", "Symbol prefix for generated locals")
	flag.BoolVar(&opts.Fingerprint, "fingerprint", false, "Put the model fingerprint in the header comment")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: defode [options] [model.toml | snapshot.cbor]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles an ODE model into compute, odefun and timedepfun routines.\n")
		fmt.Fprintf(os.Stderr, "Without an argument the nearest %s is used.\n\n", modelfile.FileName)
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  defode decay.toml                   # C to stdout\n")
		fmt.Fprintf(os.Stderr, "  defode -lang go -o decay.go decay.toml\n")
		fmt.Fprintf(os.Stderr, "  defode -snapshot decay.cbor decay.toml\n")
		fmt.Fprintf(os.Stderr, "  defode decay.cbor                   # compile a snapshot\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	switch flag.NArg() {
	case 0:
	case 1:
		opts.Input = flag.Arg(0)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err := run(opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run compiles the model named by opts. Generated code goes to opts.Output,
// or to stdout when no output file is given.
func run(opts options, stdout, stderr io.Writer) error {
	set, model, err := load(opts.Input)
	if err != nil {
		return err
	}
	for _, w := range set.Warnings() {
		fmt.Fprintf(stderr, "Warning: %s\n", w)
	}

	lang, pkg := modelfile.LangC, "model"
	var renderOpts []ode.RenderOption
	var header []string
	if model != nil {
		lang, pkg = model.Output.Lang, model.Output.Package
		renderOpts = model.RenderOptions()
		if h := model.Header(); h != "" {
			header = append(header, h)
		}
		opts.Fingerprint = opts.Fingerprint || model.Output.Fingerprint
	}
	if opts.Lang != "" {
		lang = opts.Lang
	}
	if opts.Package != "" {
		pkg = opts.Package
	}
	if opts.Prefix != "" {
		renderOpts = append(renderOpts, ode.WithSymbolPrefix(opts.Prefix))
	}
	if opts.Fingerprint {
		fp, err := snapshot.Fingerprint(set)
		if err != nil {
			return err
		}
		header = append(header, fmt.Sprintf("fingerprint sha256:%x", fp))
	}
	if len(header) > 0 {
		renderOpts = append(renderOpts, ode.WithHeader(strings.Join(header, "\n")))
	}

	if opts.Snapshot != "" {
		data, err := snapshot.Encode(set)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.Snapshot, data, 0644); err != nil {
			return fmt.Errorf("cannot write snapshot: %w", err)
		}
		log.Infof("wrote snapshot %s (%d bytes)", opts.Snapshot, len(data))
	}

	plan, err := set.Plan(renderOpts...)
	if err != nil {
		return err
	}

	// Nothing is written unless rendering succeeds.
	var buf bytes.Buffer
	switch lang {
	case modelfile.LangC:
		err = ode.WriteC(&buf, plan)
	case modelfile.LangGo:
		err = gogen.Render(&buf, plan, gogen.Options{Package: pkg})
	default:
		return fmt.Errorf("unknown language %q", lang)
	}
	if err != nil {
		return err
	}

	if opts.Output == "" {
		_, err = stdout.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(opts.Output, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("cannot write output: %w", err)
	}
	log.Infof("wrote %s (%s, %d bytes)", opts.Output, lang, buf.Len())
	return nil
}

// load reads a model file or a snapshot. The model is nil for snapshots.
func load(path string) (*ode.ODESet, *modelfile.Model, error) {
	if filepath.Ext(path) == ".cbor" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		set, err := snapshot.Decode(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		return set, nil, nil
	}

	var model *modelfile.Model
	var err error
	if path == "" {
		model, err = modelfile.FindAndLoad(".")
		if err == nil && model == nil {
			err = fmt.Errorf("no %s found", modelfile.FileName)
		}
	} else {
		model, err = modelfile.Load(path)
	}
	if err != nil {
		return nil, nil, err
	}

	set, err := model.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", model.Path, err)
	}
	return set, model, nil
}
