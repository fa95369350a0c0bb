package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/maxkra/sasshost/compiler"
	"github.com/maxkra/sasshost/config"
	"github.com/maxkra/sasshost/importer"
	"github.com/maxkra/sasshost/protocol"
)

func main() {
	exprFlag := flag.String("e", "", "Compile the given SCSS string instead of a file")
	outFlag := flag.String("o", "", "Write CSS to this file instead of stdout")
	styleFlag := flag.String("style", "", "Output style: 'expanded' or 'compressed'")
	loadPathFlag := flag.String("I", "", "Colon-separated load paths for @use and @import")
	configFlag := flag.String("c", "", "Config file to use instead of the layered lookup")
	sourceMapFlag := flag.Bool("source-map", false, "Request a source map")
	timeoutFlag := flag.Duration("timeout", 2*time.Minute, "Abort the compilation after this long")
	verboseFlag := flag.Bool("v", false, "Log protocol traffic to stderr")
	flag.Parse()

	// Load configuration
	var cfg *config.Config
	var err error
	if *configFlag != "" {
		cfg, err = config.LoadFile(*configFlag)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	// Flags override config
	style := protocol.StyleExpanded
	styleName := cfg.Style
	if *styleFlag != "" {
		styleName = *styleFlag
	}
	switch styleName {
	case "", "expanded":
	case "compressed":
		style = protocol.StyleCompressed
	default:
		fmt.Fprintf(os.Stderr, "Invalid style '%s'. Must be 'expanded' or 'compressed'.\n", styleName)
		os.Exit(1)
	}

	loadPaths := cfg.LoadPaths
	if *loadPathFlag != "" {
		loadPaths = append(loadPaths, strings.Split(*loadPathFlag, ":")...)
	}

	command := cfg.Compiler
	if len(command) == 0 {
		command, err = findCompiler()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error locating a compiler: %+v\n", err)
			os.Exit(1)
		}
	}

	logger := zap.NewNop()
	if *verboseFlag {
		logger, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing logger: %+v\n", err)
			os.Exit(1)
		}
	}

	sess := compiler.NewSession(compiler.SessionOptions{
		Command: command,
		Logger:  logger,
	})
	defer sess.Close()

	opts := &compiler.CompileOptions{
		Style:     style,
		SourceMap: *sourceMapFlag || cfg.SourceMap,
	}
	if len(loadPaths) > 0 {
		opts.Importers = []compiler.Importer{
			&importer.Filesystem{LoadPaths: loadPaths, Allow: cfg.Allow},
		}
	}
	if !cfg.Quiet {
		opts.OnLog = func(ev compiler.LogEvent) {
			fmt.Fprintf(os.Stderr, "%s\n", ev.Message)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	var result *compiler.CompileResult
	switch {
	case *exprFlag != "":
		result, err = sess.Compile(ctx, *exprFlag, opts)
	case flag.NArg() == 1:
		result, err = sess.CompileFile(ctx, flag.Arg(0), opts)
	default:
		fmt.Fprintln(os.Stderr, "Usage: sassc [flags] <input.scss> | sassc [flags] -e '<scss>'")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if err != nil {
		if cerr, ok := err.(*compiler.CompilationError); ok {
			fmt.Fprintf(os.Stderr, "Error: %s\n", cerr.Error())
			if cerr.StackTrace != "" {
				fmt.Fprintln(os.Stderr, cerr.StackTrace)
			}
		} else {
			fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		}
		os.Exit(1)
	}

	if *outFlag != "" {
		if err := os.WriteFile(*outFlag, []byte(result.CSS), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %+v\n", *outFlag, err)
			os.Exit(1)
		}
		if result.SourceMap != "" {
			mapPath := *outFlag + ".map"
			if err := os.WriteFile(mapPath, []byte(result.SourceMap), 0644); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing %s: %+v\n", mapPath, err)
				os.Exit(1)
			}
		}
	} else {
		fmt.Print(result.CSS)
	}
}

// findCompiler picks a compiler command from PATH: a standalone
// dart-sass-embedded if present, otherwise the sass CLI in embedded mode.
func findCompiler() ([]string, error) {
	if path, err := exec.LookPath("dart-sass-embedded"); err == nil {
		return []string{path}, nil
	}
	if path, err := exec.LookPath("sass"); err == nil {
		return []string{path, "--embedded"}, nil
	}
	return nil, fmt.Errorf("neither 'dart-sass-embedded' nor 'sass' found on PATH; set 'compiler' in the config")
}
