package rdb

const moduleCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// ModuleParser decodes the value of one module type. Parsers are
// registered by the 9 character module type name.
type ModuleParser interface {
	ParseModule(r *ModuleReader, version int) (interface{}, error)
}

// ModuleParserFunc adapts a function to ModuleParser.
type ModuleParserFunc func(r *ModuleReader, version int) (interface{}, error)

func (f ModuleParserFunc) ParseModule(r *ModuleReader, version int) (interface{}, error) {
	return f(r, version)
}

// RawModule is the generic decoding of an opcode-tagged module value.
// Values holds uint64, int64, float32, float64 and []byte elements in
// stream order.
type RawModule struct {
	Values []interface{}
}

// ModuleReader gives module parsers typed access to the snapshot stream.
// For opcode-tagged values every read checks the opcode first.
type ModuleReader struct {
	in     *input
	tagged bool
}

func (r *ModuleReader) expect(op uint64) error {
	if !r.tagged {
		return nil
	}
	got, err := r.in.readLen()
	if err != nil {
		return err
	}
	if got != op {
		return corruptf("module value opcode %d, expected %d", got, op)
	}
	return nil
}

func (r *ModuleReader) ReadUnsigned() (uint64, error) {
	if err := r.expect(moduleOpUInt); err != nil {
		return 0, err
	}
	return r.in.readLen()
}

func (r *ModuleReader) ReadSigned() (int64, error) {
	if err := r.expect(moduleOpSInt); err != nil {
		return 0, err
	}
	n, err := r.in.readLen()
	return int64(n), err
}

func (r *ModuleReader) ReadString() ([]byte, error) {
	if err := r.expect(moduleOpString); err != nil {
		return nil, err
	}
	return r.in.readString()
}

func (r *ModuleReader) ReadDouble() (float64, error) {
	if err := r.expect(moduleOpDouble); err != nil {
		return 0, err
	}
	return r.in.readBinaryDouble()
}

func (r *ModuleReader) ReadFloat() (float32, error) {
	if err := r.expect(moduleOpFloat); err != nil {
		return 0, err
	}
	return r.in.readBinaryFloat()
}

// moduleName splits a 64-bit module type id into its name and version.
func moduleName(id uint64) (string, int) {
	name := make([]byte, 9)
	for i := 0; i < 9; i++ {
		name[i] = moduleCharset[(id>>(10+6*(8-i)))&63]
	}
	return string(name), int(id & 1023)
}

// readRawModule decodes opcode-tagged values up to the EOF opcode.
func (in *input) readRawModule() (*RawModule, error) {
	raw := &RawModule{}
	for {
		op, err := in.readLen()
		if err != nil {
			return nil, err
		}
		var v interface{}
		switch op {
		case moduleOpEOF:
			return raw, nil
		case moduleOpSInt:
			n, err := in.readLen()
			if err != nil {
				return nil, err
			}
			v = int64(n)
		case moduleOpUInt:
			n, err := in.readLen()
			if err != nil {
				return nil, err
			}
			v = n
		case moduleOpFloat:
			f, err := in.readBinaryFloat()
			if err != nil {
				return nil, err
			}
			v = f
		case moduleOpDouble:
			f, err := in.readBinaryDouble()
			if err != nil {
				return nil, err
			}
			v = f
		case moduleOpString:
			s, err := in.readString()
			if err != nil {
				return nil, err
			}
			v = s
		default:
			return nil, corruptf("unknown module value opcode %d", op)
		}
		raw.Values = append(raw.Values, v)
	}
}

func (d *Decoder) readModule(meta KeyMeta, typ byte) (*ModuleObject, error) {
	id, err := d.in.readLen()
	if err != nil {
		return nil, err
	}
	name, version := moduleName(id)
	obj := &ModuleObject{KeyMeta: meta, Module: name, Version: version}

	parser, ok := d.modules[name]
	if !ok {
		if typ != TypeModule2 {
			return nil, unsupportedf("module type %s without a registered parser", name)
		}
		if obj.Value, err = d.in.readRawModule(); err != nil {
			return nil, err
		}
		return obj, nil
	}

	r := &ModuleReader{in: d.in, tagged: typ == TypeModule2}
	if obj.Value, err = parser.ParseModule(r, version); err != nil {
		return nil, err
	}
	if typ == TypeModule2 {
		op, err := d.in.readLen()
		if err != nil {
			return nil, err
		}
		if op != moduleOpEOF {
			return nil, corruptf("module %s value not terminated by EOF opcode", name)
		}
	}
	return obj, nil
}

// readModuleAux decodes a module auxiliary payload.
func (d *Decoder) readModuleAux() (name string, when uint64, raw *RawModule, err error) {
	id, err := d.in.readLen()
	if err != nil {
		return "", 0, nil, err
	}
	name, _ = moduleName(id)

	op, err := d.in.readLen()
	if err != nil {
		return "", 0, nil, err
	}
	if op != moduleOpUInt {
		return "", 0, nil, corruptf("module aux %s: when opcode %d", name, op)
	}
	if when, err = d.in.readLen(); err != nil {
		return "", 0, nil, err
	}
	raw, err = d.in.readRawModule()
	return name, when, raw, err
}
