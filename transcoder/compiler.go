package transcoder

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/value"
)

var (
	valueType    = reflect.TypeOf(value.Value{})
	functionType = reflect.TypeOf((*value.Function)(nil)).Elem()
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	bytesType    = reflect.TypeOf([]byte(nil))
)

// Compiler derives native types from Go types and builds bindings between
// them. Results are cached per type pair and safe for concurrent use.
type Compiler struct {
	types    sync.Map // reflect.Type -> *value.Type
	bindings sync.Map // cacheKey -> *Binding
}

type cacheKey struct {
	goType reflect.Type
	typ    *value.Type
}

func NewCompiler() *Compiler {
	return &Compiler{}
}

// Infer derives the native type of a Go type. Struct fields are read with
// the js tag:
//
//	Name string `js:"name"`
//	Age  uint32 `js:"age,optional,default=18"`
//	Note *string `js:"note,nullable"`
//
// Untagged exported fields use the snake_case form of the Go name. A
// struct with a blank field tagged tuple maps to a tuple of its exported
// fields in declaration order:
//
//	type Entry struct {
//	    _     struct{} `js:",tuple"`
//	    Score float64
//	    Label string
//	}
func (c *Compiler) Infer(goType reflect.Type) (*value.Type, error) {
	if goType == nil {
		return nil, errors.InvalidInput(errors.PhaseCompile, "Go type cannot be nil")
	}
	if cached, ok := c.types.Load(goType); ok {
		return cached.(*value.Type), nil
	}
	t, err := c.infer(goType, nil, map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}
	c.types.Store(goType, t)
	return t, nil
}

func (c *Compiler) infer(goType reflect.Type, path []string, visiting map[reflect.Type]bool) (*value.Type, error) {
	switch goType {
	case bytesType:
		return value.TypeBuffer, nil
	case valueType, functionType:
		return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Path(path...).
			Detail("%s needs an explicit type", goType).
			Build()
	}

	switch goType.Kind() {
	case reflect.Bool:
		return value.TypeBool, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return value.TypeInt32, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return value.TypeUint32, nil
	case reflect.Float32:
		return value.TypeFloat32, nil
	case reflect.Float64:
		return value.TypeFloat64, nil
	case reflect.String:
		return value.TypeString, nil
	case reflect.Pointer:
		return c.infer(goType.Elem(), path, visiting)
	case reflect.Slice:
		elem, err := c.infer(goType.Elem(), append(path, "[elem]"), visiting)
		if err != nil {
			return nil, err
		}
		return value.ArrayOf(elem), nil
	case reflect.Struct:
		return c.inferStruct(goType, path, visiting)
	case reflect.Func:
		sig, err := c.inferSignature(goType, path, visiting)
		if err != nil {
			return nil, err
		}
		return &value.Type{Kind: value.KindFunction, Signature: sig}, nil
	}
	return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
		Path(path...).
		Detail("unsupported Go type: %s", goType).
		Build()
}

func (c *Compiler) inferStruct(goType reflect.Type, path []string, visiting map[reflect.Type]bool) (*value.Type, error) {
	if visiting[goType] {
		return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Path(path...).
			Detail("recursive type %s", goType).
			Build()
	}
	visiting[goType] = true
	defer delete(visiting, goType)

	if isTuple(goType) {
		var slots []*value.Type
		for i := 0; i < goType.NumField(); i++ {
			field := goType.Field(i)
			if !field.IsExported() {
				continue
			}
			st, err := c.infer(field.Type, append(append([]string{}, path...), errors.Index(len(slots))), visiting)
			if err != nil {
				return nil, err
			}
			slots = append(slots, st)
		}
		return value.TupleOf(slots...), nil
	}

	var fields []value.PropertySpec
	for i := 0; i < goType.NumField(); i++ {
		field := goType.Field(i)
		if !field.IsExported() {
			continue
		}
		tag, skip := parseTag(field)
		if skip {
			continue
		}
		fieldPath := append(append([]string{}, path...), tag.name)
		ft, err := c.infer(field.Type, fieldPath, visiting)
		if err != nil {
			return nil, err
		}
		spec := value.PropertySpec{
			Name:     tag.name,
			Type:     ft,
			Optional: tag.optional,
			Nullable: tag.nullable,
		}
		if tag.def != "" {
			def, err := parseDefault(ft, tag.def)
			if err != nil {
				return nil, errors.New(errors.PhaseCompile, errors.KindInvalidInput).
					Path(fieldPath...).
					Detail("bad default %q", tag.def).
					Cause(err).
					Build()
			}
			spec.Optional = true
			spec.Default = &def
		}
		fields = append(fields, spec)
	}
	return value.ObjectOf(fields...), nil
}

func (c *Compiler) inferSignature(goType reflect.Type, path []string, visiting map[reflect.Type]bool) (*value.Signature, error) {
	if goType.IsVariadic() {
		return nil, errors.Unsupported(errors.PhaseCompile, "variadic function "+goType.String())
	}
	sig := &value.Signature{}
	for i := 0; i < goType.NumIn(); i++ {
		pt, err := c.infer(goType.In(i), append(append([]string{}, path...), "args", errors.Index(i)), visiting)
		if err != nil {
			return nil, err
		}
		sig.Params = append(sig.Params, pt)
	}
	res, _, err := resultShape(goType)
	if err != nil {
		return nil, err
	}
	if res != nil {
		rt, err := c.infer(res, append(append([]string{}, path...), "result"), visiting)
		if err != nil {
			return nil, err
		}
		sig.Result = rt
	}
	return sig, nil
}

// resultShape accepts func(...), func(...) R, func(...) error and
// func(...) (R, error).
func resultShape(goType reflect.Type) (result reflect.Type, hasErr bool, err error) {
	switch goType.NumOut() {
	case 0:
		return nil, false, nil
	case 1:
		if goType.Out(0) == errorType {
			return nil, true, nil
		}
		return goType.Out(0), false, nil
	case 2:
		if goType.Out(1) == errorType {
			return goType.Out(0), true, nil
		}
	}
	return nil, false, errors.Unsupported(errors.PhaseCompile, "function results "+goType.String())
}

func isTuple(goType reflect.Type) bool {
	for i := 0; i < goType.NumField(); i++ {
		if f := goType.Field(i); f.Name == "_" && f.Tag.Get("js") == ",tuple" {
			return true
		}
	}
	return false
}

type fieldTag struct {
	name     string
	def      string
	optional bool
	nullable bool
}

func parseTag(field reflect.StructField) (fieldTag, bool) {
	tag := fieldTag{name: SnakeCase(field.Name)}
	raw, ok := field.Tag.Lookup("js")
	if !ok {
		return tag, false
	}
	if raw == "-" {
		return tag, true
	}
	parts := strings.Split(raw, ",")
	if parts[0] != "" {
		tag.name = parts[0]
	}
	for _, opt := range parts[1:] {
		switch {
		case opt == "optional":
			tag.optional = true
		case opt == "nullable":
			tag.nullable = true
		case strings.HasPrefix(opt, "default="):
			tag.def = strings.TrimPrefix(opt, "default=")
		}
	}
	return tag, false
}

func parseDefault(t *value.Type, s string) (value.Value, error) {
	switch t.Kind {
	case value.KindBool:
		b, err := strconv.ParseBool(s)
		return value.Bool(b), err
	case value.KindInt32:
		i, err := strconv.ParseInt(s, 10, 32)
		return value.Int32(int32(i)), err
	case value.KindUint32:
		u, err := strconv.ParseUint(s, 10, 32)
		return value.Uint32(uint32(u)), err
	case value.KindFloat32:
		f, err := strconv.ParseFloat(s, 32)
		return value.Float32(float32(f)), err
	case value.KindFloat64:
		f, err := strconv.ParseFloat(s, 64)
		return value.Float64(f), err
	case value.KindString:
		return value.String(s), nil
	}
	return value.Value{}, errors.Unsupported(errors.PhaseCompile, "default for "+t.String())
}

// SnakeCase converts a Go identifier to snake_case: UserID becomes user_id,
// GetObject becomes get_object.
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Bind infers the native type of goType and compiles a binding for it.
func (c *Compiler) Bind(goType reflect.Type) (*Binding, error) {
	t, err := c.Infer(goType)
	if err != nil {
		return nil, err
	}
	return c.Compile(t, goType)
}

// Compile builds a binding between t and goType, checking that the Go
// type can hold every value of t.
func (c *Compiler) Compile(t *value.Type, goType reflect.Type) (*Binding, error) {
	if goType == nil || t == nil {
		return nil, errors.InvalidInput(errors.PhaseCompile, "type cannot be nil")
	}
	key := cacheKey{goType: goType, typ: t}
	if cached, ok := c.bindings.Load(key); ok {
		return cached.(*Binding), nil
	}
	b, err := c.compile(t, goType, nil)
	if err != nil {
		return nil, err
	}
	c.bindings.Store(key, b)
	return b, nil
}

func (c *Compiler) compile(t *value.Type, goType reflect.Type, path []string) (*Binding, error) {
	b := &Binding{goType: goType, typ: t}

	switch {
	case goType == valueType:
		b.kind = bindValue
		return b, nil
	case goType.Kind() == reflect.Pointer:
		elem, err := c.compile(t, goType.Elem(), path)
		if err != nil {
			return nil, err
		}
		b.kind = bindPointer
		b.elem = elem
		return b, nil
	}

	switch t.Kind {
	case value.KindBool:
		return c.primitive(b, reflect.Bool)
	case value.KindString:
		return c.primitive(b, reflect.String)
	case value.KindInt32:
		if !isSigned(goType) {
			return nil, errors.TypeMismatch(errors.PhaseCompile, path, t.String(), goType.String())
		}
		b.kind = bindInt
		return b, nil
	case value.KindUint32:
		if !isUnsigned(goType) {
			return nil, errors.TypeMismatch(errors.PhaseCompile, path, t.String(), goType.String())
		}
		b.kind = bindUint
		return b, nil
	case value.KindFloat32, value.KindFloat64:
		if goType.Kind() != reflect.Float32 && goType.Kind() != reflect.Float64 {
			return nil, errors.TypeMismatch(errors.PhaseCompile, path, t.String(), goType.String())
		}
		b.kind = bindFloat
		return b, nil
	case value.KindBuffer:
		if goType != bytesType {
			return nil, errors.TypeMismatch(errors.PhaseCompile, path, t.String(), goType.String())
		}
		b.kind = bindBytes
		return b, nil
	case value.KindNull:
		b.kind = bindNull
		return b, nil
	case value.KindArray:
		if goType.Kind() != reflect.Slice {
			return nil, errors.TypeMismatch(errors.PhaseCompile, path, t.String(), goType.String())
		}
		elem, err := c.compile(t.Elem, goType.Elem(), append(append([]string{}, path...), "[elem]"))
		if err != nil {
			return nil, err
		}
		b.kind = bindSlice
		b.elem = elem
		return b, nil
	case value.KindTuple:
		return c.compileTuple(b, path)
	case value.KindObject:
		return c.compileObject(b, path)
	case value.KindFunction:
		return c.compileFunc(b, path)
	}
	return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
		Path(path...).
		Detail("unsupported type %s", t).
		Build()
}

func (c *Compiler) primitive(b *Binding, want reflect.Kind) (*Binding, error) {
	if b.goType.Kind() != want {
		return nil, errors.TypeMismatch(errors.PhaseCompile, nil, b.typ.String(), b.goType.String())
	}
	b.kind = bindPrimitive
	return b, nil
}

// compileTuple binds tuple slots positionally to exported struct fields.
func (c *Compiler) compileTuple(b *Binding, path []string) (*Binding, error) {
	if b.goType.Kind() != reflect.Struct {
		return nil, errors.TypeMismatch(errors.PhaseCompile, path, b.typ.String(), b.goType.String())
	}
	var exported []reflect.StructField
	for i := 0; i < b.goType.NumField(); i++ {
		if f := b.goType.Field(i); f.IsExported() {
			exported = append(exported, f)
		}
	}
	if len(exported) != len(b.typ.Slots) {
		return nil, errors.ArityMismatch(errors.PhaseCompile, path, len(b.typ.Slots), len(exported))
	}
	b.kind = bindTuple
	for i, slot := range b.typ.Slots {
		sb, err := c.compile(slot, exported[i].Type, append(append([]string{}, path...), errors.Index(i)))
		if err != nil {
			return nil, err
		}
		b.fields = append(b.fields, fieldBinding{index: exported[i].Index, bind: sb})
	}
	return b, nil
}

func (c *Compiler) compileObject(b *Binding, path []string) (*Binding, error) {
	if b.goType.Kind() != reflect.Struct {
		return nil, errors.TypeMismatch(errors.PhaseCompile, path, b.typ.String(), b.goType.String())
	}
	b.kind = bindStruct
	for _, spec := range b.typ.Fields {
		goField, found := findGoField(b.goType, spec.Name)
		if !found {
			return nil, errors.FieldMissing(errors.PhaseCompile, path, spec.Name)
		}
		fieldPath := append(append([]string{}, path...), spec.Name)
		fb, err := c.compile(spec.Type, goField.Type, fieldPath)
		if err != nil {
			return nil, err
		}
		b.fields = append(b.fields, fieldBinding{spec: spec, index: goField.Index, bind: fb})
	}
	return b, nil
}

// findGoField matches by: 1) js:"name" tag, 2) snake_case name, 3) case-insensitive.
func findGoField(goType reflect.Type, name string) (reflect.StructField, bool) {
	for i := 0; i < goType.NumField(); i++ {
		field := goType.Field(i)
		if !field.IsExported() {
			continue
		}
		tag, skip := parseTag(field)
		if skip {
			continue
		}
		if tag.name == name || strings.EqualFold(field.Name, name) {
			return field, true
		}
	}
	return reflect.StructField{}, false
}

func (c *Compiler) compileFunc(b *Binding, path []string) (*Binding, error) {
	if b.goType == functionType {
		b.kind = bindFunction
		return b, nil
	}
	if b.goType.Kind() != reflect.Func {
		return nil, errors.TypeMismatch(errors.PhaseCompile, path, b.typ.String(), b.goType.String())
	}
	sig := b.typ.Signature
	if sig == nil {
		return nil, errors.InvalidInput(errors.PhaseCompile, "function type without signature")
	}
	if b.goType.NumIn() != len(sig.Params) || b.goType.IsVariadic() {
		return nil, errors.ArityMismatch(errors.PhaseCompile, path, len(sig.Params), b.goType.NumIn())
	}
	res, hasErr, err := resultShape(b.goType)
	if err != nil {
		return nil, err
	}
	fb := &funcBinding{hasErr: hasErr}
	for i, pt := range sig.Params {
		pb, err := c.compile(pt, b.goType.In(i), append(append([]string{}, path...), "args", errors.Index(i)))
		if err != nil {
			return nil, err
		}
		fb.params = append(fb.params, pb)
	}
	switch {
	case res != nil && sig.Result != nil:
		rb, err := c.compile(sig.Result, res, append(append([]string{}, path...), "result"))
		if err != nil {
			return nil, err
		}
		fb.result = rb
	case res != nil || sig.Result != nil:
		return nil, errors.TypeMismatch(errors.PhaseCompile, append(append([]string{}, path...), "result"), sig.Result.String(), typeName(res))
	}
	b.kind = bindFunc
	b.fn = fb
	return b, nil
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "void"
	}
	return t.String()
}

func isSigned(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUnsigned(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func fitsInt32(i int64) bool {
	return i >= math.MinInt32 && i <= math.MaxInt32
}
