package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.bytecodealliance.org/wit"

	jsruntime "github.com/wippyai/js-runtime"
	"github.com/wippyai/js-runtime/config"
	"github.com/wippyai/js-runtime/examples/hello"
	"github.com/wippyai/js-runtime/runtime"
	"github.com/wippyai/js-runtime/value"
	"github.com/wippyai/js-runtime/wasmbind"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to YAML configuration")
		wasmFile    = flag.String("wasm", "", "Wasm core module to expose to scripts")
		wasmName    = flag.String("as", "wasm", "Module name for -wasm")
		witFile     = flag.String("wit", "", "WIT JSON (wasm-tools component wit -j) typing the -wasm exports")
		witWorld    = flag.String("world", "", "World in -wit whose exports describe the module (default: the -as name)")
		expr        = flag.String("e", "", "Expression to evaluate and print")
		list        = flag.Bool("list", false, "List module exports and exit")
		schema      = flag.Bool("schema", false, "Print the configuration JSON schema and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		version     = flag.Bool("version", false, "Print the version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("run", jsruntime.Version)
		return
	}

	if *schema {
		out, err := config.Schema()
		if err != nil {
			fail(err)
		}
		fmt.Println(string(out))
		return
	}

	script := flag.Arg(0)
	if script == "" && *expr == "" && !*list && !*interactive {
		fmt.Fprintln(os.Stderr, "Usage: run [-config file.yaml] [-wasm file.wasm [-as name] [-wit file.json [-world name]]] <script.js>")
		fmt.Fprintln(os.Stderr, "       run -e <expression>")
		fmt.Fprintln(os.Stderr, "       run -list")
		fmt.Fprintln(os.Stderr, "       run -i  (interactive mode)")
		fmt.Fprintln(os.Stderr, "       run -schema")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rt, err := newRuntime(ctx, *configFile, wasmSource{
		file:  *wasmFile,
		name:  *wasmName,
		wit:   *witFile,
		world: *witWorld,
	})
	if err != nil {
		fail(err)
	}
	defer rt.Close(context.Background())

	switch {
	case *interactive:
		err = runInteractive(rt)
	case *list:
		err = listExports(ctx, rt)
	case *expr != "":
		err = evalExpr(ctx, rt, *expr)
	default:
		err = runScript(ctx, rt, script)
	}
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// wasmSource names a wasm core module to expose and, optionally, the WIT
// world typing its exports.
type wasmSource struct {
	file  string
	name  string
	wit   string
	world string
}

func (s wasmSource) config() (*wasmbind.Config, error) {
	if s.wit == "" {
		return nil, nil
	}
	res, err := wit.LoadJSON(s.wit)
	if err != nil {
		return nil, fmt.Errorf("read wit: %w", err)
	}
	world := s.world
	if world == "" {
		world = s.name
	}
	fns, err := wasmbind.WorldExports(res, world)
	if err != nil {
		return nil, err
	}
	return &wasmbind.Config{Interface: fns}, nil
}

// newRuntime builds a runtime with the hello module and, when src.file is
// set, the wasm module registered under src.name.
func newRuntime(ctx context.Context, configFile string, src wasmSource) (*runtime.Runtime, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	rt, err := runtime.New(runtime.WithConfig(cfg))
	if err != nil {
		return nil, err
	}
	if err := rt.RegisterExports("hello", hello.New()); err != nil {
		rt.Close(ctx)
		return nil, err
	}

	if src.file != "" {
		data, err := os.ReadFile(src.file)
		if err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("read wasm: %w", err)
		}
		cfg, err := src.config()
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		wasmbind.SetLogger(rt.Log().Named("wasm"))
		mod, err := wasmbind.Load(ctx, data, cfg)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		err = rt.RegisterInit(src.name, func(e *runtime.Exports) error {
			return wasmbind.Bind(e, mod)
		})
		if err != nil {
			_ = mod.Close(ctx)
			rt.Close(ctx)
			return nil, err
		}
	}
	return rt, nil
}

func listExports(ctx context.Context, rt *runtime.Runtime) error {
	for _, name := range rt.Modules() {
		info, err := rt.Describe(ctx, name)
		if err != nil {
			return fmt.Errorf("describe %s: %w", name, err)
		}
		fmt.Printf("%s:\n", name)
		for _, e := range info.Exports {
			fmt.Printf("  %s\n", e)
		}
	}
	return nil
}

func runScript(ctx context.Context, rt *runtime.Runtime, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return rt.Run(ctx, path, string(src))
}

// evalExpr prints the JSON form of expr, awaiting it when it is a promise.
func evalExpr(ctx context.Context, rt *runtime.Runtime, expr string) error {
	src := "(async () => String(JSON.stringify(await (" + expr + "\n))))()"
	out, err := rt.Await(ctx, "expr.js", src, value.TypeString)
	if err != nil {
		return err
	}
	if err := rt.Wait(ctx); err != nil {
		return err
	}
	fmt.Println(out.Str())
	return nil
}
