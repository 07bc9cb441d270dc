// Package runtime is the high-level API for exposing native Go to scripts.
//
// # Quick Start
//
//	rt, err := runtime.New(runtime.WithConfig(cfg))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	rt.RegisterExports("hello", &Hello{})
//
//	v, err := rt.Await(ctx, "main.js", `require("hello").fib_async(20)`, value.TypeUint32)
//
// # Registering Modules
//
// A module is created the first time a script requires it. Two forms
// build the same surface:
//
//	RegisterExports(name, v)  - reflect exported methods and fields of v
//	RegisterInit(name, init)  - init populates an *Exports explicitly
//
// Reflected method names are converted to snake_case (GetObject ->
// get_object). Struct fields of type *class.Descriptor become classes;
// other exported fields become constants. A method may take *Call as its
// first parameter to reach the environment:
//
//	func (h *Hello) Fib(n uint32) uint32
//	func (h *Hello) CallFunction(cb func(int32, int32) (int32, error)) (int32, error)
//	func (h *Hello) CreateBuffer(c *runtime.Call) []byte
//
// Types implementing AsyncExports move selected methods off the host
// thread:
//
//	func (h *Hello) AsyncFunctions() map[string]runtime.Mode {
//	    return map[string]runtime.Mode{"fib_async": runtime.Await}
//	}
//
// # Call Boundary
//
// Every export decodes all arguments against its signature before the
// native body runs. Synchronous bodies run inside a resource.Scope that is
// closed before any error is raised to the script as an exception of the
// matching class (TypeMismatchError, NativeFailureError, ...). Await
// exports return a promise; Background exports return undefined and log
// failures.
package runtime
