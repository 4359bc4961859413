package rdb

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Handler receives the contents of a snapshot in stream order.
type Handler interface {
	// OnDatabase is called when the snapshot switches database
	OnDatabase(index int) error

	// OnResizeDB carries the size hints that follow a database selector
	OnResizeDB(keys, expires uint64) error

	// OnAux is called for auxiliary metadata fields
	OnAux(key, value []byte) error

	// OnFunction is called with the source of each function library
	OnFunction(code []byte) error

	// OnModuleAux is called for module auxiliary payloads
	OnModuleAux(module string, when uint64, value *RawModule) error

	// OnObject is called once per fully decoded key
	OnObject(obj Object) error

	// OnEnd is called after the EOF opcode with the trailing checksum
	// (zero for snapshots without one)
	OnEnd(checksum uint64) error
}

// BaseHandler implements Handler with no-ops. Embed it to handle a subset.
type BaseHandler struct{}

func (BaseHandler) OnDatabase(int) error                         { return nil }
func (BaseHandler) OnResizeDB(uint64, uint64) error              { return nil }
func (BaseHandler) OnAux([]byte, []byte) error                   { return nil }
func (BaseHandler) OnFunction([]byte) error                      { return nil }
func (BaseHandler) OnModuleAux(string, uint64, *RawModule) error { return nil }
func (BaseHandler) OnObject(Object) error                        { return nil }
func (BaseHandler) OnEnd(uint64) error                           { return nil }

// Option configures a Decoder.
type Option func(*Decoder)

// WithModuleParser registers a parser for the module type with the given
// 9 character name.
func WithModuleParser(name string, p ModuleParser) Option {
	return func(d *Decoder) {
		d.modules[name] = p
	}
}

// Decoder streams a snapshot to a Handler. It reads exactly the bytes of
// the snapshot when the source is a ByteSource and nothing after the
// checksum.
type Decoder struct {
	in      *input
	handler Handler
	modules map[string]ModuleParser
	version int
	db      int

	// metadata waiting for the next key
	expireAt time.Time
	idle     int64
	freq     int
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader, handler Handler, opts ...Option) *Decoder {
	d := &Decoder{
		in:      newInput(r),
		handler: handler,
		modules: make(map[string]ModuleParser),
		idle:    -1,
		freq:    -1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode decodes a whole snapshot from r.
func Decode(r io.Reader, handler Handler, opts ...Option) error {
	return NewDecoder(r, handler, opts...).Decode()
}

// Version returns the snapshot format version once the header is read.
func (d *Decoder) Version() int {
	return d.version
}

// Decode reads the header and every record up to and including the EOF
// opcode and checksum.
func (d *Decoder) Decode() error {
	if err := d.readHeader(); err != nil {
		return err
	}

	for {
		op, err := d.in.readByte()
		if err != nil {
			return fmt.Errorf("failed to read opcode: %w", err)
		}

		switch op {
		case opEOF:
			var checksum uint64
			if d.version >= 5 {
				if checksum, err = d.in.readUint64LE(); err != nil {
					return fmt.Errorf("failed to read checksum: %w", err)
				}
			}
			return d.handler.OnEnd(checksum)

		case opSelectDB:
			db, err := d.in.readLen()
			if err != nil {
				return fmt.Errorf("failed to read database number: %w", err)
			}
			d.db = int(db)
			if err := d.handler.OnDatabase(d.db); err != nil {
				return err
			}

		case opResizeDB:
			keys, err := d.in.readLen()
			if err != nil {
				return err
			}
			expires, err := d.in.readLen()
			if err != nil {
				return err
			}
			if err := d.handler.OnResizeDB(keys, expires); err != nil {
				return err
			}

		case opSlotInfo:
			// slot id, slot size and expires size, written by cluster nodes
			for _, field := range []string{"slot id", "slot size", "slot expires size"} {
				if _, err := d.in.readLen(); err != nil {
					return fmt.Errorf("failed to read %s: %w", field, err)
				}
			}

		case opAux:
			key, err := d.in.readString()
			if err != nil {
				return fmt.Errorf("failed to read aux key: %w", err)
			}
			value, err := d.in.readString()
			if err != nil {
				return fmt.Errorf("failed to read aux value for %q: %w", key, err)
			}
			if err := d.handler.OnAux(key, value); err != nil {
				return err
			}

		case opExpireTime:
			sec, err := d.in.readUint32LE()
			if err != nil {
				return fmt.Errorf("failed to read expiry: %w", err)
			}
			d.expireAt = time.Unix(int64(int32(sec)), 0)

		case opExpireTimeMs:
			ms, err := d.in.readUint64LE()
			if err != nil {
				return fmt.Errorf("failed to read expiry: %w", err)
			}
			d.expireAt = time.UnixMilli(int64(ms))

		case opIdle:
			idle, err := d.in.readLen()
			if err != nil {
				return fmt.Errorf("failed to read idle time: %w", err)
			}
			d.idle = int64(idle)

		case opFreq:
			freq, err := d.in.readByte()
			if err != nil {
				return fmt.Errorf("failed to read frequency: %w", err)
			}
			d.freq = int(freq)

		case opModuleAux:
			name, when, raw, err := d.readModuleAux()
			if err != nil {
				return fmt.Errorf("failed to read module aux: %w", err)
			}
			if err := d.handler.OnModuleAux(name, when, raw); err != nil {
				return err
			}

		case opFunction2:
			code, err := d.in.readString()
			if err != nil {
				return fmt.Errorf("failed to read function library: %w", err)
			}
			if err := d.handler.OnFunction(code); err != nil {
				return err
			}

		case opFunctionPreGA:
			return unsupportedf("pre-release function encoding")

		default:
			if err := d.readKeyValue(op); err != nil {
				return err
			}
		}
	}
}

func (d *Decoder) readHeader() error {
	var header [9]byte
	if err := d.in.readFull(header[:]); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if string(header[:5]) != magicString {
		return corruptf("invalid magic %q", header[:5])
	}
	version, err := strconv.Atoi(string(header[5:]))
	if err != nil {
		return corruptf("invalid version %q", header[5:])
	}
	if version < 1 || version > MaxVersion {
		return unsupportedf("format version %d (max supported: %d)", version, MaxVersion)
	}
	d.version = version
	return nil
}

func (d *Decoder) readKeyValue(typ byte) error {
	key, err := d.in.readString()
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}

	meta := KeyMeta{Key: key, DB: d.db, ExpireAt: d.expireAt, Idle: d.idle, Freq: d.freq}
	d.expireAt, d.idle, d.freq = time.Time{}, -1, -1

	obj, err := d.readObject(meta, typ)
	if err != nil {
		return fmt.Errorf("key %q (type %d): %w", key, typ, err)
	}
	return d.handler.OnObject(obj)
}

func (d *Decoder) readObject(meta KeyMeta, typ byte) (Object, error) {
	in := d.in

	switch typ {
	case TypeString:
		v, err := in.readString()
		if err != nil {
			return nil, err
		}
		return &StringObject{KeyMeta: meta, Value: v}, nil

	case TypeList, TypeListZiplist, TypeListQuicklist, TypeListQuicklist2:
		it, err := d.listIter(typ)
		if err != nil {
			return nil, err
		}
		values, err := collect(it)
		if err != nil {
			return nil, err
		}
		return &ListObject{KeyMeta: meta, Values: values}, nil

	case TypeSet, TypeSetIntset, TypeSetListpack:
		it, err := d.setIter(typ)
		if err != nil {
			return nil, err
		}
		members, err := collect(it)
		if err != nil {
			return nil, err
		}
		return &SetObject{KeyMeta: meta, Members: members}, nil

	case TypeZset, TypeZset2:
		n, err := in.readLen()
		if err != nil {
			return nil, err
		}
		it := &SortedSetIter{in: in, left: n, binary: typ == TypeZset2}
		var members []ScoredMember
		for {
			m, err := it.Next()
			if errors.Is(err, ErrExhausted) {
				break
			}
			if err != nil {
				return nil, err
			}
			members = append(members, m)
		}
		return &SortedSetObject{KeyMeta: meta, Members: members}, nil

	case TypeZsetZiplist, TypeZsetListpack:
		it, err := d.blobIter(typ == TypeZsetListpack)
		if err != nil {
			return nil, err
		}
		members, err := collectScored(it)
		if err != nil {
			return nil, err
		}
		return &SortedSetObject{KeyMeta: meta, Members: members}, nil

	case TypeHash:
		n, err := in.readLen()
		if err != nil {
			return nil, err
		}
		fields, err := collectFields(&StringIter{in: in, left: 2 * n})
		if err != nil {
			return nil, err
		}
		return &HashObject{KeyMeta: meta, Fields: fields}, nil

	case TypeHashZipmap:
		blob, err := in.readString()
		if err != nil {
			return nil, err
		}
		it, err := newZipmapIter(blob)
		if err != nil {
			return nil, err
		}
		var fields []Field
		for {
			f, err := it.Next()
			if errors.Is(err, ErrExhausted) {
				break
			}
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
		return &HashObject{KeyMeta: meta, Fields: fields}, nil

	case TypeHashZiplist, TypeHashListpack:
		it, err := d.blobIter(typ == TypeHashListpack)
		if err != nil {
			return nil, err
		}
		fields, err := collectFields(it)
		if err != nil {
			return nil, err
		}
		return &HashObject{KeyMeta: meta, Fields: fields}, nil

	case TypeStreamListpacks, TypeStreamListpacks2, TypeStreamListpacks3:
		return d.readStream(meta, typ)

	case TypeModule, TypeModule2:
		return d.readModule(meta, typ)

	case TypeHashMetadata, TypeHashListpackEx:
		return nil, unsupportedf("hash with field expiration")

	default:
		return nil, unsupportedf("unknown value type %d", typ)
	}
}

func (d *Decoder) listIter(typ byte) (Iterator, error) {
	switch typ {
	case TypeListZiplist:
		return d.blobIter(false)
	case TypeListQuicklist, TypeListQuicklist2:
		n, err := d.in.readLen()
		if err != nil {
			return nil, err
		}
		return &QuicklistIter{in: d.in, nodes: n, listpack: typ == TypeListQuicklist2}, nil
	default:
		n, err := d.in.readLen()
		if err != nil {
			return nil, err
		}
		return &StringIter{in: d.in, left: n}, nil
	}
}

func (d *Decoder) setIter(typ byte) (Iterator, error) {
	switch typ {
	case TypeSetIntset:
		blob, err := d.in.readString()
		if err != nil {
			return nil, err
		}
		return newIntsetIter(blob)
	case TypeSetListpack:
		return d.blobIter(true)
	default:
		n, err := d.in.readLen()
		if err != nil {
			return nil, err
		}
		return &StringIter{in: d.in, left: n}, nil
	}
}

// blobIter reads one encoded blob and iterates it as a listpack or ziplist.
func (d *Decoder) blobIter(listpack bool) (Iterator, error) {
	blob, err := d.in.readString()
	if err != nil {
		return nil, err
	}
	if listpack {
		return newListpackIter(blob)
	}
	return newZiplistIter(blob)
}
