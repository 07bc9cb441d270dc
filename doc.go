// Package jsruntime binds native Go code to the goja JavaScript engine.
//
// Native modules are plain Go values or init functions registered with a
// runtime and loaded by scripts through require. Values crossing the
// boundary are checked against declared types, native errors surface as
// typed script exceptions, and long work runs off the host thread.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	jsruntime/           Root package with the module version
//	├── runtime/         Module registration, require integration and calls
//	├── engine/          Host thread event loop owning the goja runtime
//	├── value/           Native value and type model
//	├── transcoder/      Type bridge between host values and native values
//	├── errors/          Structured errors and host exception mapping
//	├── class/           Native classes with fields, methods and statics
//	├── buffer/          ArrayBuffer bridge in copy or zero-copy mode
//	├── channel/         Thread-safe invocation of host callbacks
//	├── async/           Worker pool for promise and background work
//	├── resource/        Handle table and call scopes
//	├── config/          YAML configuration, validation and JSON schema
//	├── wasmbind/        Wasm core module exports as native functions
//	└── examples/hello/  Reference module covering every binding
//
// # Quick Start
//
//	rt, err := runtime.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	if err := rt.RegisterExports("hello", hello.New()); err != nil {
//	    log.Fatal(err)
//	}
//
//	v, err := rt.Eval(ctx, "main.js", `require("hello").hello("World")`, value.TypeString)
//	fmt.Println(v.Str()) // "Hello, World!"
//
// # Thread Safety
//
// The goja runtime is owned by one goroutine. Runtime, Scheduler and
// channel functions are safe for concurrent use and reach the host thread
// by posting jobs to it. Host values must not be touched from other
// goroutines.
package jsruntime

// Version is the module version reported by the command line tools.
const Version = "0.1.0"
