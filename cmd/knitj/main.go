// Command knitj renders a literate Python/Markdown source file into a
// live, continuously updated HTML page backed by a Jupyter kernel, or
// converts it once to a static HTML file in batch mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/knitj/knitj/coordinator"
	"github.com/knitj/knitj/parser"
)

func main() {
	var (
		server     = flag.Bool("s", false, "run in server mode (requires FILE)")
		formatFlag = flag.String("f", "", "input format: markdown or code (auto-detected by suffix when omitted)")
		output     = flag.String("o", "", "output HTML file (default: FILE with .html suffix, or stdout in batch mode from stdin)")
		kernelCmd  = flag.String("k", "python3 -m ipykernel_launcher -f {connection_file}", "kernel launch command template")
		browser    = flag.String("b", "", "browser to open in server mode (passed to the system opener)")
		noBrowser  = flag.Bool("n", false, "do not open a browser in server mode")
	)
	flag.Parse()

	var source string
	if flag.NArg() > 0 {
		source = flag.Arg(0)
	}
	if *server && source == "" {
		fmt.Fprintln(os.Stderr, "knitj: -s requires FILE")
		os.Exit(1)
	}

	format, err := resolveFormat(*formatFlag, source)
	if err != nil {
		fmt.Fprintln(os.Stderr, "knitj:", err)
		os.Exit(1)
	}

	outputPath := *output
	if outputPath == "" && source != "" {
		outputPath = strings.TrimSuffix(source, filepath.Ext(source)) + ".html"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := coordinator.Config{
		SourcePath:   source,
		OutputPath:   outputPath,
		Format:       format,
		KernelCmd:    strings.Fields(*kernelCmd),
		StaticDir:    filepath.Join(filepath.Dir(os.Args[0]), "static"),
		ClientScript: *server,
		PortLow:      8080,
		PortHigh:     8099,
	}
	if *server && !*noBrowser {
		cfg.OnListening = func(url string) { openBrowser(*browser, url) }
	}
	coord := coordinator.New(cfg)

	if *server {
		if err := coord.RunServer(ctx); err != nil {
			klog.Errorf("knitj: %v", err)
			os.Exit(1)
		}
		return
	}

	in := os.Stdin
	if source != "" {
		f, err := os.Open(source)
		if err != nil {
			klog.Errorf("knitj: %v", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	var out = os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			klog.Errorf("knitj: %v", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	if err := coord.RunBatch(ctx, in, out); err != nil {
		klog.Errorf("knitj: %v", err)
		os.Exit(1)
	}
}

// resolveFormat auto-detects the source dialect from its file suffix
// (.py -> code, .md -> markdown) when the -f flag is absent.
func resolveFormat(flagValue, source string) (parser.Format, error) {
	switch flagValue {
	case "markdown":
		return parser.Markdown, nil
	case "code":
		return parser.Code, nil
	case "":
		switch filepath.Ext(source) {
		case ".py":
			return parser.Code, nil
		case ".md":
			return parser.Markdown, nil
		}
		return "", fmt.Errorf("cannot determine input format for %q, pass -f", source)
	default:
		return "", fmt.Errorf("unrecognized -f value %q", flagValue)
	}
}

// openBrowser best-effort opens url in the named browser (or the system
// default if name is empty), matching original_source/knitj/cli.py's
// webbrowser.get(args.browser) behavior.
func openBrowser(name, url string) {
	var cmd *exec.Cmd
	switch {
	case name != "":
		cmd = exec.Command(name, url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		klog.Warningf("knitj: could not open browser: %v", err)
	}
}
