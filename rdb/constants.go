package rdb

// Opcodes that may appear where a value type is expected.
const (
	opSlotInfo      = 244
	opFunction2     = 245
	opFunctionPreGA = 246
	opModuleAux     = 247
	opIdle          = 248
	opFreq          = 249
	opAux           = 250
	opResizeDB      = 251
	opExpireTimeMs  = 252
	opExpireTime    = 253
	opSelectDB      = 254
	opEOF           = 255
)

// Value type tags.
const (
	TypeString           = 0
	TypeList             = 1
	TypeSet              = 2
	TypeZset             = 3
	TypeHash             = 4
	TypeZset2            = 5
	TypeModule           = 6
	TypeModule2          = 7
	TypeHashZipmap       = 9
	TypeListZiplist      = 10
	TypeSetIntset        = 11
	TypeZsetZiplist      = 12
	TypeHashZiplist      = 13
	TypeListQuicklist    = 14
	TypeStreamListpacks  = 15
	TypeHashListpack     = 16
	TypeZsetListpack     = 17
	TypeListQuicklist2   = 18
	TypeStreamListpacks2 = 19
	TypeSetListpack      = 20
	TypeStreamListpacks3 = 21
	TypeHashMetadata     = 24
	TypeHashListpackEx   = 25
)

// Length encoding.
const (
	len6Bit     = 0
	len14Bit    = 1
	len32or64   = 2
	lenEncVal   = 3
	len32Bit    = 0x80
	len64Bit    = 0x81
	encInt8     = 0
	encInt16    = 1
	encInt32    = 2
	encLZF      = 3
	magicString = "REDIS"
)

// Module2 value opcodes.
const (
	moduleOpEOF    = 0
	moduleOpSInt   = 1
	moduleOpUInt   = 2
	moduleOpFloat  = 3
	moduleOpDouble = 4
	moduleOpString = 5
)

// Quicklist2 node containers.
const (
	quicklistNodePlain  = 1
	quicklistNodePacked = 2
)

const (
	ziplistEnd       = 0xFF
	ziplistBigPrev   = 0xFE
	ziplistUnknownSz = 0xFFFF
	zipmapBigLen     = 254
	zipmapEnd        = 255
	listpackEnd      = 0xFF
	listpackUnknown  = 0xFFFF
)

// MaxVersion is the newest snapshot format version the decoder reads.
const MaxVersion = 12
