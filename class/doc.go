// Package class binds native types to host classes.
//
// A Descriptor lists the fields, constructor parameters, methods and
// static members of a class. Register turns it into a host constructor:
//
//	c, err := class.Register(env, &class.Descriptor{
//	    Name:       "Point",
//	    Fields:     []value.PropertySpec{value.Required("x", value.TypeInt32), value.Required("y", value.TypeInt32)},
//	    CtorParams: []string{"y", "x"},
//	    Statics:    []class.Static{{Name: "origin", Value: value.String("0,0")}},
//	})
//
// Field reads and writes go through the value bridge, so assigning a
// string to an int32 field throws TypeMismatchError. Static members are
// neither writable nor configurable.
//
// # Construction
//
// Public classes are constructed with new; calling the constructor as a
// function throws TypeError. FactoryOnly classes throw
// ConstructionForbiddenError from new and are built by native code with
// Class.New.
//
// # Lifetime
//
// Every instance owns a handle-table entry. Instances are destroyed when
// the host garbage collector reclaims their object, when Class.Destroy is
// called, or when the environment closes. Destruction runs the Finalize
// hook exactly once; the collector-triggered path runs it on a runtime
// goroutine, not the host thread.
//
// Each host object carries a hidden per-class symbol, so methods invoked
// on a foreign receiver throw TypeMismatchError instead of reading the
// wrong native state.
package class
